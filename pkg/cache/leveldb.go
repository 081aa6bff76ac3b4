package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB key layout:
//
//	g:<generation>              generation marker
//	e:<generation>\x00<key>     gob-encoded CacheEntry
const (
	levelGenPrefix   = "g:"
	levelEntryPrefix = "e:"
)

// LevelDBStorage persists generations on local disk.
type LevelDBStorage struct {
	db *leveldb.DB
}

// OpenLevelDBStorage opens (or creates) a LevelDB database at path.
func OpenLevelDBStorage(path string) (*LevelDBStorage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelDBStorage{db: db}, nil
}

func levelEntryPrefixFor(generation string) []byte {
	return []byte(levelEntryPrefix + generation + "\x00")
}

func levelEntryKey(generation string, key CacheKey) []byte {
	return append(levelEntryPrefixFor(generation), key.String()...)
}

func (s *LevelDBStorage) Open(_ context.Context, generation string) error {
	if err := s.db.Put([]byte(levelGenPrefix+generation), nil, nil); err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

func (s *LevelDBStorage) Put(_ context.Context, generation string, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	b, err := encodeGob(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("encode cache entry: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(levelGenPrefix+generation), nil)
	batch.Put(levelEntryKey(generation, key), b)
	if err := s.db.Write(batch, nil); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("leveldb write: %w", err)
	}
	return nil
}

func (s *LevelDBStorage) Get(_ context.Context, generation string, key CacheKey) (*CacheEntry, error) {
	b, err := s.db.Get(levelEntryKey(generation, key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			CacheMisses.WithLabelValues("leveldb").Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	var ent CacheEntry
	if err := decodeGob(b, &ent); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	CacheHits.WithLabelValues("leveldb").Inc()
	return &ent, nil
}

func (s *LevelDBStorage) Generations(_ context.Context) ([]string, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(levelGenPrefix)), nil)
	defer it.Release()

	var out []string
	for it.Next() {
		out = append(out, string(bytes.TrimPrefix(it.Key(), []byte(levelGenPrefix))))
	}
	if err := it.Error(); err != nil {
		CacheErrors.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("leveldb iterate: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func (s *LevelDBStorage) DeleteGeneration(_ context.Context, generation string) (bool, error) {
	marker := []byte(levelGenPrefix + generation)
	existed, err := s.db.Has(marker, nil)
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("leveldb has: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Delete(marker)

	it := s.db.NewIterator(util.BytesPrefix(levelEntryPrefixFor(generation)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("leveldb iterate: %w", err)
	}

	if err := s.db.Write(batch, nil); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("leveldb write: %w", err)
	}
	return existed, nil
}

func (s *LevelDBStorage) Close() error {
	return s.db.Close()
}

// ---- encoding ----

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	dec := gob.NewDecoder(bytes.NewReader(b))
	return dec.Decode(v)
}

func init() {
	// Ensure http.Header is registered for gob.
	gob.Register(http.Header{})
}
