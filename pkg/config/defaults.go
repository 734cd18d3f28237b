package config

// Plugin defaults target the Kobalte dialog primitives.
const (
	DefaultContainerName     = "Dialog.Root"
	DefaultMarkerName        = "Dialog.Description"
	DefaultPackageSpecifier  = "@kobalte/core"
	DefaultFlagKey           = "__hasDescription"
	DefaultParallelism       = 0
	DefaultProviderCacheSize = 512
)

// DefaultFactoryNames are the runtime functions lowered JSX calls with
// (component, props). Solid emits createComponent, the automatic React-style
// runtime emits jsx/jsxs/jsxDEV and falls back to createElement when a key
// follows a spread.
func DefaultFactoryNames() []string {
	return []string{"createComponent", "createElement", "jsx", "jsxs", "jsxDEV"}
}

// DefaultIncludeSuffixes are the source suffixes the hooks inspect.
func DefaultIncludeSuffixes() []string {
	return []string{".tsx", ".jsx"}
}

// DefaultResolveExtensions are probed, in order, for extensionless imports.
func DefaultResolveExtensions() []string {
	return []string{".tsx", ".ts", ".jsx", ".js", ".mjs"}
}

// Logging defaults.
const (
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultLogOutput     = "stderr"
	DefaultLogMaxSizeMB  = 50
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 14
)
