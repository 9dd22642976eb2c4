package cache

import (
	"bytes"
	"container/list"
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/minio/highwayhash"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/bintly"
)

var hashKey = []byte("0123456789ABCDEF0123456789ABCDEF")

// Key hashes a model name and text into a cache key.
func Key(model, text string) (uint64, error) {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		return 0, err
	}
	if _, err = h.Write([]byte(model + "\n" + text)); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// LRU is a bounded, concurrency-safe text embedding cache. A nil *LRU is a
// valid, always-missing cache.
type LRU struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List
	items map[uint64]*list.Element
}

type entry struct {
	key uint64
	vec []float32
}

// New creates a cache holding up to capacity vectors; it returns nil when
// capacity is not positive.
func New(capacity int) *LRU {
	if capacity <= 0 {
		return nil
	}
	return &LRU{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[uint64]*list.Element, capacity),
	}
}

// Get returns a copy of the cached vector.
func (c *LRU) Get(key uint64) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		return cloneVec(el.Value.(*entry).vec), true
	}
	return nil, false
}

// Add stores a copy of vec, evicting the least recently used entry when full.
func (c *LRU) Add(key uint64, vec []float32) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*entry).vec = cloneVec(vec)
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&entry{key: key, vec: cloneVec(vec)})
	if c.ll.Len() > c.cap {
		if back := c.ll.Back(); back != nil {
			c.ll.Remove(back)
			delete(c.items, back.Value.(*entry).key)
		}
	}
}

// Len returns the number of cached vectors.
func (c *LRU) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Save writes a snapshot of the cache to URL (any afs supported location).
// Entries are written least recently used first so Load restores the order.
func (c *LRU) Save(ctx context.Context, URL string) error {
	if c == nil || URL == "" {
		return nil
	}
	writers := bintly.NewWriters()
	w := writers.Get()
	defer writers.Put(w)

	c.mu.Lock()
	w.Int(c.ll.Len())
	for el := c.ll.Back(); el != nil; el = el.Prev() {
		item := el.Value.(*entry)
		w.String(strconv.FormatUint(item.key, 16))
		w.Int(len(item.vec))
		for _, v := range item.vec {
			w.Float32(v)
		}
	}
	c.mu.Unlock()

	fs := afs.New()
	if ok, _ := fs.Exists(ctx, URL); ok {
		_ = fs.Delete(ctx, URL)
	}
	return fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(w.Bytes()))
}

// Load restores a snapshot written by Save. A missing snapshot is not an error.
func (c *LRU) Load(ctx context.Context, URL string) error {
	if c == nil || URL == "" {
		return nil
	}
	fs := afs.New()
	if ok, _ := fs.Exists(ctx, URL); !ok {
		return nil
	}
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return err
	}
	readers := bintly.NewReaders()
	r := readers.Get()
	defer readers.Put(r)
	if err := r.FromBytes(data); err != nil {
		return fmt.Errorf("cache: decode snapshot: %w", err)
	}
	var count int
	r.Int(&count)
	for i := 0; i < count; i++ {
		var rawKey string
		var size int
		r.String(&rawKey)
		r.Int(&size)
		vec := make([]float32, size)
		for j := range vec {
			r.Float32(&vec[j])
		}
		key, err := strconv.ParseUint(rawKey, 16, 64)
		if err != nil {
			return fmt.Errorf("cache: decode snapshot key %q: %w", rawKey, err)
		}
		c.Add(key, vec)
	}
	return nil
}

func cloneVec(vec []float32) []float32 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
