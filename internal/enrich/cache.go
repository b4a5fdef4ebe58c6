package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const embeddingKeyPrefix = "emb:"

// Cache is a Service decorator that persists embeddings in BadgerDB so that
// re-chunking unchanged text does not call the service again. Descriptions
// pass through uncached.
type Cache struct {
	Service
	db         *badger.DB
	deployment string
	logger     *slog.Logger
}

type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (bl *badgerLogger) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenCache opens (creating if needed) a BadgerDB at dir in front of inner.
// Keys include the deployment so switching models never serves stale vectors.
func OpenCache(dir, deployment string, inner Service) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	logger := slog.Default().With("component", "embedding-cache")
	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &Cache{Service: inner, db: db, deployment: deployment, logger: logger}, nil
}

// Embed serves the vector from the cache when present, otherwise calls the
// wrapped Service and stores non-empty results.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	var cached []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := decodeVector(val)
			cached = v
			return err
		})
	})
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, badger.ErrKeyNotFound):
		c.logger.Warn("cache read failed", "err", err)
	}

	vec, err := c.Service.Embed(ctx, text)
	if err != nil || len(vec) == 0 {
		return vec, err
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, encodeVector(vec))
	}); err != nil {
		c.logger.Warn("cache write failed", "err", err)
	}
	return vec, nil
}

// Close closes the database and the wrapped Service.
func (c *Cache) Close() {
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close embedding cache", "err", err)
	}
	c.Service.Close()
}

func (c *Cache) key(text string) []byte {
	h := sha256.New()
	h.Write([]byte(c.deployment))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return h.Sum([]byte(embeddingKeyPrefix))
}

// encodeVector stores v as fixed-width little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector: %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
