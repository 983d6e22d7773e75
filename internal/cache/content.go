package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/emit"
)

const bucketName = "revision-content"

// Fingerprinter identifies the current state of a file's RCS history.
type Fingerprinter interface {
	Fingerprint(file string) (string, error)
}

// Stats counts cache lookups.
type Stats struct {
	Hits   int
	Misses int
}

// ContentCache keeps checked-out revision text in a bbolt file so repeated
// conversions of the same tree skip the co runs. Entries are keyed by the
// file's history fingerprint, so rewriting a ,v file invalidates them.
type ContentCache struct {
	db     *bolt.DB
	source emit.ContentSource
	prints Fingerprinter
	logger *logrus.Logger

	mu     sync.Mutex
	stats  Stats
	byFile map[string]string
}

// Open opens (creating if needed) the cache database at path.
func Open(path string, source emit.ContentSource, prints Fingerprinter, logger *logrus.Logger) (*ContentCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open content cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init content cache: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ContentCache{
		db:     db,
		source: source,
		prints: prints,
		logger: logger,
		byFile: make(map[string]string),
	}, nil
}

// Content returns the cached text of a revision, falling back to the
// underlying source and storing what it returns.
func (c *ContentCache) Content(ctx context.Context, file string, rev catalog.RevID) ([]byte, error) {
	key, err := c.key(file, rev)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketName)).Get(key); v != nil {
			data = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read content cache: %w", err)
	}
	if data != nil {
		c.count(true)
		return data, nil
	}

	c.count(false)
	data, err = c.source.Content(ctx, file, rev)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(key, data)
	})
	if err != nil {
		c.logger.WithError(err).WithField("file", file).Warn("Failed to store revision content in cache")
	}
	return data, nil
}

func (c *ContentCache) key(file string, rev catalog.RevID) ([]byte, error) {
	c.mu.Lock()
	fp, ok := c.byFile[file]
	c.mu.Unlock()
	if !ok {
		var err error
		fp, err = c.prints.Fingerprint(file)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.byFile[file] = fp
		c.mu.Unlock()
	}
	return []byte(file + "\x00" + fp + "\x00" + string(rev)), nil
}

func (c *ContentCache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
}

// Stats returns the lookup counters.
func (c *ContentCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close closes the cache database.
func (c *ContentCache) Close() error {
	st := c.Stats()
	c.logger.WithFields(logrus.Fields{
		"hits":   st.Hits,
		"misses": st.Misses,
	}).Debug("Closing content cache")
	return c.db.Close()
}
