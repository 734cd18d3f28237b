package verdict

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// snapshotFormat identifies the on-disk layout written by Save.
const snapshotFormat = 1

// ErrSnapshotFormat reports an unreadable or foreign snapshot.
var ErrSnapshotFormat = errors.New("unsupported verdict snapshot")

type snapshotFile struct {
	Format  int              `json:"format"`
	Entries map[string]Entry `json:"entries"`
}

// Save writes every entry of store to w as LZ4-framed JSON. Snapshots let
// the discovery and rewrite phases run in separate processes.
func Save(w io.Writer, store *MemoryStore) error {
	zw := lz4.NewWriter(w)

	encodeErr := json.NewEncoder(zw).Encode(snapshotFile{
		Format:  snapshotFormat,
		Entries: store.Snapshot(),
	})
	if encodeErr != nil {
		return errors.Join(fmt.Errorf("encode verdict snapshot: %w", encodeErr), zw.Close())
	}

	closeErr := zw.Close()
	if closeErr != nil {
		return fmt.Errorf("flush verdict snapshot: %w", closeErr)
	}

	return nil
}

// Load reads a snapshot written by Save into store. keep, when non-nil,
// decides per entry whether it is still valid (typically by comparing the
// digest against the current file content); rejected entries are skipped.
// It returns the number of entries loaded.
func Load(r io.Reader, store Store, keep func(path string, entry Entry) bool) (int, error) {
	var snap snapshotFile

	decodeErr := json.NewDecoder(lz4.NewReader(r)).Decode(&snap)
	if decodeErr != nil {
		return 0, fmt.Errorf("%w: %w", ErrSnapshotFormat, decodeErr)
	}

	if snap.Format != snapshotFormat {
		return 0, fmt.Errorf("%w: format %d", ErrSnapshotFormat, snap.Format)
	}

	loaded := 0

	for path, entry := range snap.Entries {
		if keep != nil && !keep(path, entry) {
			continue
		}

		store.Put(path, entry)
		loaded++
	}

	return loaded, nil
}
