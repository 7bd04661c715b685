package spec

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DocumentCache memoizes parsed root documents by (path, encoding) for the
// lifetime of the cache. Entries are written once and never refreshed; scope a
// cache per build or call Invalidate when freshness matters.
//
// Get hands every caller its own deep copy, because normalization mutates the
// tree it is given. Concurrent first access to the same key parses once.
type DocumentCache struct {
	load  func(path, encoding string) (*Node, error)
	docs  sync.Map // cacheKey -> *Node
	group singleflight.Group
	log   logrus.FieldLogger
}

type cacheKey struct {
	Path     string
	Encoding string
}

func (k cacheKey) String() string { return k.Encoding + "\x00" + k.Path }

// NewDocumentCache returns a cache backed by LoadDocument.
func NewDocumentCache() *DocumentCache {
	return NewDocumentCacheWith(LoadDocument, nil)
}

// NewDocumentCacheWith returns a cache backed by a custom loader.
func NewDocumentCacheWith(load func(path, encoding string) (*Node, error), log logrus.FieldLogger) *DocumentCache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DocumentCache{load: load, log: log}
}

var defaultCache = NewDocumentCache()

// DefaultCache is the process-wide cache.
func DefaultCache() *DocumentCache { return defaultCache }

// Get returns a private copy of the document at path decoded with encoding.
// Load failures are not cached.
func (c *DocumentCache) Get(path, encoding string) (*Node, error) {
	key := cacheKey{Path: path, Encoding: encoding}
	if doc, ok := c.docs.Load(key); ok {
		c.log.WithField("path", path).Debug("spec cache hit")
		return doc.(*Node).DeepCopy(), nil
	}
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if doc, ok := c.docs.Load(key); ok {
			return doc, nil
		}
		doc, err := c.load(path, encoding)
		if err != nil {
			return nil, err
		}
		actual, _ := c.docs.LoadOrStore(key, doc)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Node).DeepCopy(), nil
}

// Invalidate drops the entry for (path, encoding).
func (c *DocumentCache) Invalidate(path, encoding string) {
	c.docs.Delete(cacheKey{Path: path, Encoding: encoding})
}

// Clear drops every entry.
func (c *DocumentCache) Clear() {
	c.docs.Range(func(key, _ any) bool {
		c.docs.Delete(key)
		return true
	})
}

// Len returns the number of cached documents.
func (c *DocumentCache) Len() int {
	n := 0
	c.docs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
