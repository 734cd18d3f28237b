package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/descinject/pkg/esbuildplugin"
	"github.com/Sumatoshi-tech/descinject/pkg/plugin"
)

// Tool names.
const (
	ToolNameScan    = "description_scan"
	ToolNameRewrite = "description_rewrite"
)

// MaxCodeInputBytes bounds inline code and files read on behalf of a tool.
const MaxCodeInputBytes = 1 << 20

// Sentinel errors.
var (
	// ErrNoPlugin indicates the server was built without a plugin.
	ErrNoPlugin = errors.New("mcp server requires a plugin")
	// ErrEmptyPath indicates the path parameter is empty.
	ErrEmptyPath = errors.New("path parameter is required and must not be empty")
	// ErrPathNotAbsolute indicates the path is not absolute.
	ErrPathNotAbsolute = errors.New("path must be an absolute path")
	// ErrPathFiltered indicates the path is outside the include filter.
	ErrPathFiltered = errors.New("path is not matched by the include filter")
	// ErrCodeTooLarge indicates the code input exceeds the size limit.
	ErrCodeTooLarge = errors.New("code input exceeds maximum size")
)

// ScanInput is the input schema for the description_scan tool.
type ScanInput struct {
	Path string `json:"path"           jsonschema:"absolute path of the JSX or TSX file"`
	Code string `json:"code,omitempty" jsonschema:"optional source to analyse instead of the file on disk"`
}

// RewriteInput is the input schema for the description_rewrite tool.
type RewriteInput struct {
	Path    string `json:"path"              jsonschema:"absolute path of the JSX or TSX file"`
	Code    string `json:"code,omitempty"    jsonschema:"optional source to rewrite instead of the file on disk"`
	Verdict *bool  `json:"verdict,omitempty" jsonschema:"optional flag value; discovered from the source when omitted"`
}

// RewriteResult is the payload of the description_rewrite tool.
type RewriteResult struct {
	Path    string `json:"path"`
	Verdict bool   `json:"verdict"`
	Calls   int    `json:"calls"`
	Code    string `json:"code"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

type toolHandler struct {
	hooks        *plugin.Plugin
	importSource string
}

func (h *toolHandler) scan(ctx context.Context, _ *mcpsdk.CallToolRequest, input ScanInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	src, err := h.source(input.Path, input.Code)
	if err != nil {
		return errorResult(err)
	}

	disc, err := h.hooks.Discover(ctx, filepath.Clean(input.Path), src)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(disc)
}

func (h *toolHandler) rewrite(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input RewriteInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	src, err := h.source(input.Path, input.Code)
	if err != nil {
		return errorResult(err)
	}

	path := filepath.Clean(input.Path)

	var value bool

	if input.Verdict != nil {
		value = *input.Verdict
	} else {
		disc, discErr := h.hooks.Discover(ctx, path, src)
		if discErr != nil {
			return errorResult(discErr)
		}

		value = disc.Verdict
	}

	lowered, err := esbuildplugin.Lower(path, src, h.importSource)
	if err != nil {
		return errorResult(err)
	}

	res := RewriteResult{Path: path, Verdict: value, Code: lowered}

	out, err := h.hooks.Rewrite(ctx, path, lowered, value)
	if err != nil {
		return errorResult(err)
	}

	if out != nil {
		res.Code = out.Code
		res.Calls = out.Calls
	}

	return jsonResult(res)
}

// source validates path and returns code, or the file contents when code
// is empty.
func (h *toolHandler) source(path, code string) ([]byte, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %s", ErrPathNotAbsolute, path)
	}

	if !h.hooks.Filter().Match(path) {
		return nil, fmt.Errorf("%w: %s", ErrPathFiltered, path)
	}

	if code == "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		code = string(data)
	}

	if len(code) > MaxCodeInputBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrCodeTooLarge, len(code), MaxCodeInputBytes)
	}

	return []byte(code), nil
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
