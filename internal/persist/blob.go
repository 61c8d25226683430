package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/microtrade/ledger-engine/internal/model"
)

// ErrNotFound is returned by Blob.Read when nothing has been saved yet.
var ErrNotFound = errors.New("persist: blob not found")

// Blob is an opaque durable byte slot.
type Blob interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}

// Load restores the trade log from b. A missing blob yields an empty log; a
// corrupt one is logged and also yields an empty log. Only I/O failures of
// the blob itself are returned.
func Load(ctx context.Context, b Blob) ([]model.TradeRecord, error) {
	data, err := b.Read(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	records, err := Decode(data)
	if err != nil {
		slog.Warn("persisted trade log is corrupt, starting empty", "err", err, "bytes", len(data))
		return nil, nil
	}
	return records, nil
}

// Save writes the full log to b.
func Save(ctx context.Context, b Blob, records []model.TradeRecord) error {
	data, err := Encode(records)
	if err != nil {
		return fmt.Errorf("encode trade log: %w", err)
	}
	return b.Write(ctx, data)
}

// --- File ---

// FileBlob stores the blob in a single file, replaced atomically on write.
type FileBlob struct {
	path string
}

// NewFileBlob creates a file-backed blob at path.
func NewFileBlob(path string) *FileBlob {
	return &FileBlob{path: path}
}

// Path returns the backing file path.
func (f *FileBlob) Path() string { return f.path }

func (f *FileBlob) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (f *FileBlob) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".trades-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileBlob) Delete(_ context.Context) error {
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// --- Redis ---

// RedisBlob stores the blob under a single redis key with no expiry.
type RedisBlob struct {
	rdb redis.Cmdable
	key string
}

// NewRedisBlob creates a redis-backed blob. An empty key means StorageKey.
func NewRedisBlob(rdb redis.Cmdable, key string) *RedisBlob {
	if key == "" {
		key = StorageKey
	}
	return &RedisBlob{rdb: rdb, key: key}
}

func (r *RedisBlob) Read(ctx context.Context) ([]byte, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (r *RedisBlob) Write(ctx context.Context, data []byte) error {
	return r.rdb.Set(ctx, r.key, data, time.Duration(0)).Err()
}

func (r *RedisBlob) Delete(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}
