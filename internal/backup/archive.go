package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// Backup is a finished full-backup archive.
type Backup struct {
	Archive   []byte
	CreatedAt time.Time
	// Assets lists the keys stored under assets/.
	Assets []string
	// Skipped lists referenced keys that could not be downloaded.
	Skipped []string
}

// Partial reports whether some referenced assets are missing from the archive.
func (b *Backup) Partial() bool {
	return len(b.Skipped) > 0
}

// FileName is the suggested download name for the archive.
func (b *Backup) FileName() string {
	return "site-backup-" + b.CreatedAt.Format("20060102-150405") + ".zip"
}

// CreateFullBackup builds a zip archive of every collection plus the assets
// they reference. Individual asset downloads that fail are skipped and listed
// in Backup.Skipped; only a failure to write the archive returns an error.
func (e *Engine) CreateFullBackup(ctx context.Context, onProgress ProgressFunc) (*Backup, error) {
	report := progressReporter(onProgress)

	report("Aggregating collection data...")
	doc, err := e.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	keys := e.AssetKeys(doc)
	assets, skipped := e.downloadAssets(ctx, keys, report)

	report("Packaging archive...")
	archive, stored, err := writeArchive(doc, assets)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	b := &Backup{
		Archive:   archive,
		CreatedAt: time.Now(),
		Assets:    stored,
		Skipped:   skipped,
	}
	report(fmt.Sprintf("Backup complete: %d collections, %d assets, %d skipped", len(e.keys), len(stored), len(skipped)))
	return b, nil
}

func (e *Engine) downloadAssets(ctx context.Context, keys []string, report ProgressFunc) (map[string][]byte, []string) {
	assets := make(map[string][]byte, len(keys))
	if len(keys) == 0 || e.files == nil {
		return assets, nil
	}

	report(fmt.Sprintf("Downloading assets (0/%d)...", len(keys)))

	var (
		mu      sync.Mutex
		done    int
		skipped []string
	)

	p := pool.New().WithMaxGoroutines(e.concurrency)
	for _, key := range keys {
		p.Go(func() {
			data, err := e.files.DownloadFile(ctx, key)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				skipped = append(skipped, key)
				e.log.WithFields(logrus.Fields{
					"component": "backup",
					"asset":     key,
				}).WithError(err).Warn("asset download failed, leaving it out of the backup")
			} else {
				assets[key] = data
			}
			report(fmt.Sprintf("Downloading assets (%d/%d)...", done, len(keys)))
		})
	}
	p.Wait()

	slices.Sort(skipped)
	return assets, skipped
}

func writeArchive(doc []byte, assets map[string][]byte) ([]byte, []string, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	now := time.Now()
	if err := writeEntry(zw, DataEntry, doc, now); err != nil {
		return nil, nil, err
	}

	stored := make([]string, 0, len(assets))
	for key := range assets {
		stored = append(stored, key)
	}
	slices.Sort(stored)

	for _, key := range stored {
		if err := writeEntry(zw, AssetsPrefix+key, assets[key], now); err != nil {
			return nil, nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), stored, nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// RestoreFullBackup imports data/database.json from archive. While the cloud
// is available every archived asset is uploaded again under its original key
// so references in the restored records keep resolving.
func (e *Engine) RestoreFullBackup(ctx context.Context, archive []byte, onProgress ProgressFunc) (Result, error) {
	report := progressReporter(onProgress)

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return Result{Success: false, Message: "invalid format"}, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	var (
		doc    []byte
		assets []*zip.File
	)
	for _, f := range zr.File {
		switch {
		case f.Name == DataEntry:
			doc, err = readEntry(f)
			if err != nil {
				return Result{Success: false, Message: "invalid format"}, fmt.Errorf("%w: %w", ErrArchive, err)
			}
		case strings.HasPrefix(f.Name, AssetsPrefix) && !f.FileInfo().IsDir():
			assets = append(assets, f)
		}
	}
	if doc == nil {
		return Result{Success: false, Message: "invalid format: " + DataEntry + " missing"}, nil
	}

	report("Restoring collection data...")
	result := e.Import(ctx, doc)
	if !result.Success {
		return result, nil
	}

	if e.files == nil || e.available == nil || !e.available.Available() {
		if len(assets) > 0 {
			report(fmt.Sprintf("Cloud storage unavailable, %d assets not restored", len(assets)))
		}
		return result, nil
	}

	failed := 0
	for i, f := range assets {
		key := strings.TrimPrefix(f.Name, AssetsPrefix)
		report(fmt.Sprintf("Uploading assets (%d/%d)...", i+1, len(assets)))

		data, err := readEntry(f)
		if err == nil {
			_, err = e.files.UploadFile(ctx, key, mime.TypeByExtension(path.Ext(key)), data)
		}
		if err != nil {
			failed++
			e.log.WithFields(logrus.Fields{
				"component": "backup",
				"asset":     key,
			}).WithError(err).Warn("asset restore failed")
		}
	}
	if failed > 0 {
		result.Message = fmt.Sprintf("%d of %d assets could not be restored", failed, len(assets))
	}
	return result, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

func progressReporter(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return func(string) {}
	}
	return fn
}
