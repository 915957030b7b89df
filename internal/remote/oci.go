package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/klauspost/compress/zstd"
)

const (
	labelCreated     = "dev.sitestore.created"
	labelCollections = "dev.sitestore.collections"
	labelAssets      = "dev.sitestore.assets"

	DefaultAttempts = 3
)

type OCIRemote struct {
	ref      name.Reference
	auth     Authenticator
	attempts int
}

// NewOCIRemote creates a remote from a standard image ref such as
// "ghcr.io/acme/site-backup:latest". insecure allows plain-HTTP registries.
func NewOCIRemote(imageRef string, auth Authenticator, insecure bool) (*OCIRemote, error) {
	opts := []name.Option{name.WithDefaultTag("latest")}
	if insecure {
		opts = append(opts, name.Insecure)
	}
	ref, err := name.ParseReference(imageRef, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid image ref %q: %w", imageRef, err)
	}
	return &OCIRemote{ref: ref, auth: auth, attempts: DefaultAttempts}, nil
}

func (r *OCIRemote) String() string   { return r.ref.Name() }
func (r *OCIRemote) Registry() string { return r.ref.Context().RegistryStr() }

// archiveLayer implements v1.Layer with zstd compression for remote transfer
type archiveLayer struct {
	compressed   []byte
	uncompressed []byte
}

var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

func newArchiveLayer(data []byte) *archiveLayer {
	return &archiveLayer{
		compressed:   zstdEncoder.EncodeAll(data, nil),
		uncompressed: data,
	}
}

func (l *archiveLayer) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.compressed))
	return h, err
}

func (l *archiveLayer) DiffID() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.uncompressed))
	return h, err
}

func (l *archiveLayer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}
func (l *archiveLayer) Uncompressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.uncompressed)), nil
}
func (l *archiveLayer) Size() (int64, error)                { return int64(len(l.compressed)), nil }
func (l *archiveLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }

// Push uploads s as a single-layer image and returns the manifest digest.
func (r *OCIRemote) Push(ctx context.Context, s Snapshot) (string, error) {
	if len(s.Archive) == 0 {
		return "", fmt.Errorf("push %s: empty archive", r.ref)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	img, err := mutate.AppendLayers(empty.Image, newArchiveLayer(s.Archive))
	if err != nil {
		return "", fmt.Errorf("append layer: %w", err)
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return "", fmt.Errorf("read config: %w", err)
	}
	cfg = cfg.DeepCopy()
	cfg.Created = v1.Time{Time: s.CreatedAt.UTC()}
	cfg.Config.Labels = map[string]string{
		labelCreated:     s.CreatedAt.UTC().Format(time.RFC3339),
		labelCollections: strconv.Itoa(s.Collections),
		labelAssets:      strconv.Itoa(s.Assets),
	}
	img, err = mutate.ConfigFile(img, cfg)
	if err != nil {
		return "", fmt.Errorf("set config: %w", err)
	}

	_, err = retry(ctx, r.attempts, func() (struct{}, error) {
		return struct{}{}, remote.Write(r.ref, img, r.remoteOptions(ctx)...)
	})
	if err != nil {
		return "", fmt.Errorf("push %s: %w", r.ref, err)
	}

	digest, err := img.Digest()
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return digest.String(), nil
}

// Pull downloads the snapshot currently tagged at the ref.
func (r *OCIRemote) Pull(ctx context.Context) (Snapshot, error) {
	img, err := retry(ctx, r.attempts, func() (v1.Image, error) {
		return remote.Image(r.ref, r.remoteOptions(ctx)...)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch image: %w", err)
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return Snapshot{}, fmt.Errorf("get config: %w", err)
	}
	created, err := time.Parse(time.RFC3339, cfg.Config.Labels[labelCreated])
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s is not a site backup: missing %s label", r.ref, labelCreated)
	}

	layers, err := img.Layers()
	if err != nil {
		return Snapshot{}, fmt.Errorf("get layers: %w", err)
	}
	if len(layers) != 1 {
		return Snapshot{}, fmt.Errorf("expected 1 layer, found %d", len(layers))
	}

	rc, err := layers[0].Uncompressed()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read layer: %w", err)
	}
	archive, err := io.ReadAll(rc)
	if cerr := rc.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read layer: %w", err)
	}

	digest, err := img.Digest()
	if err != nil {
		return Snapshot{}, fmt.Errorf("digest: %w", err)
	}

	collections, _ := strconv.Atoi(cfg.Config.Labels[labelCollections])
	assets, _ := strconv.Atoi(cfg.Config.Labels[labelAssets])
	return Snapshot{
		Archive:     archive,
		CreatedAt:   created,
		Collections: collections,
		Assets:      assets,
		Digest:      digest.String(),
	}, nil
}

func (r *OCIRemote) remoteOptions(ctx context.Context) []remote.Option {
	options := []remote.Option{remote.WithContext(ctx)}
	if r.auth != nil {
		username, password, err := r.auth.Authenticate(r.Registry())
		if err == nil && username != "" {
			return append(options, remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			}))
		}
	}
	return append(options, remote.WithAuthFromKeychain(authn.DefaultKeychain))
}

func retry[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range maxAttempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * 500 * time.Millisecond // 500ms, 1s, 2s, 4s...
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
