// Package remote publishes full-backup archives to an OCI registry.
//
// A backup becomes a single-layer image: the layer is the zstd-compressed zip
// archive and the config labels carry what the archive contains, so a backup
// can be inspected without downloading it.
package remote

import (
	"context"
	"time"
)

// Snapshot is one published backup.
type Snapshot struct {
	Archive     []byte
	CreatedAt   time.Time
	Collections int
	Assets      int
	// Digest is the manifest digest, set on push and pull.
	Digest string
}

// Remote stores and retrieves backup snapshots.
type Remote interface {
	Push(ctx context.Context, s Snapshot) (digest string, err error)
	Pull(ctx context.Context) (Snapshot, error)
}
