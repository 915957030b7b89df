package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/aweris/sitestore/internal/compression"
	"github.com/dgraph-io/badger/v4"
)

// Badger persists entries in a badger database. Values are framed by the
// zstd compressor, so Size decodes them to report logical bytes.
type Badger struct {
	db         *badger.DB
	compressor *compression.Compressor
}

// OpenBadger opens (or creates) a database in dir. An empty dir keeps the
// database in memory.
func OpenBadger(dir string, compress bool) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.SyncWrites = true
	}
	opts.Logger = nil
	opts.ValueLogFileSize = 64 << 20

	compressor, err := compression.NewCompressor(2, compress)
	if err != nil {
		return nil, fmt.Errorf("create compressor: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		compressor.Close()
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}

	return &Badger{db: db, compressor: compressor}, nil
}

func (b *Badger) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, b.wrap("get", key, err)
	}

	data, err := b.compressor.Decompress(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return data, true, nil
}

func (b *Badger) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded := b.compressor.Compress(value)
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), encoded)
	})
	return b.wrap("set", key, err)
}

func (b *Badger) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return b.wrap("delete", key, err)
}

func (b *Badger) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, b.wrap("list", "", err)
	}
	return keys, nil
}

func (b *Badger) Size(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var total int64
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				data, err := b.compressor.Decompress(val)
				if err != nil {
					return err
				}
				total += int64(len(item.Key()) + len(data))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, b.wrap("size", "", err)
	}
	return total, nil
}

func (b *Badger) Close() error {
	err := b.db.Close()
	b.compressor.Close()
	return err
}

func (b *Badger) wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	if key == "" {
		return fmt.Errorf("badger %s: %w", op, err)
	}
	return fmt.Errorf("badger %s %s: %w", op, key, err)
}
