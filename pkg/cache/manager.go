// Package cache holds refined masks and composited images between edits.
//
// Two independent LRU stores are bounded by item count and estimated bytes. A
// tracker indexes every key by the image it was derived from so a single image
// can be invalidated without scanning either store.
package cache

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/shotcoach/pkg/fingerprint"
)

// Kind names one of the two stores
type Kind string

const (
	KindMask   Kind = "mask"
	KindResult Kind = "result"
)

// Config bounds the two stores. Zero disables a bound.
type Config struct {
	MaskMaxItems   int   `json:"mask_max_items" mapstructure:"mask_max_items"`
	MaskMaxBytes   int64 `json:"mask_max_bytes" mapstructure:"mask_max_bytes"`
	ResultMaxItems int   `json:"result_max_items" mapstructure:"result_max_items"`
	ResultMaxBytes int64 `json:"result_max_bytes" mapstructure:"result_max_bytes"`
}

// DefaultConfig returns the default ceilings
func DefaultConfig() Config {
	return Config{
		MaskMaxItems:   20,
		MaskMaxBytes:   100 << 20,
		ResultMaxItems: 10,
		ResultMaxBytes: 200 << 20,
	}
}

// Key is a cache key together with the store it lives in
type Key struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

// MaskKey keys a refined or raw mask by image
func MaskKey(fp fingerprint.Fingerprint) string {
	return fp.String()
}

// ResultKey keys a full-size composite by image and intensity
func ResultKey(fp fingerprint.Fingerprint, intensity float64) string {
	return fmt.Sprintf("%s/blur/%.2f", fp, intensity)
}

// PreviewKey keys a reduced-size composite by image, intensity and preview size
func PreviewKey(fp fingerprint.Fingerprint, intensity float64, size int) string {
	return fmt.Sprintf("%s/preview/%d/%.2f", fp, size, intensity)
}

// ImageCost estimates the memory held by an image of the given bounds
func ImageCost(b image.Rectangle) int64 {
	return int64(b.Dx()) * int64(b.Dy()) * 4
}

// StoreStats describes one store
type StoreStats struct {
	Items    int   `json:"items"`
	Bytes    int64 `json:"bytes"`
	MaxItems int   `json:"max_items"`
	MaxBytes int64 `json:"max_bytes"`
}

// Stats describes both stores and the tracker
type Stats struct {
	Masks         StoreStats `json:"masks"`
	Results       StoreStats `json:"results"`
	TrackedImages int        `json:"tracked_images"`
	TotalBytes    int64      `json:"total_bytes"`
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithRegisterer registers cache metrics on reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.metrics = NewMetrics(reg) }
}

// Manager owns the mask and result stores and the per-image key tracker
type Manager struct {
	config  Config
	masks   *Store[*image.Gray]
	results *Store[image.Image]
	logger  logrus.FieldLogger
	metrics *Metrics

	mu      sync.RWMutex
	tracked map[string]map[Key]struct{}
}

// NewManager creates a cache manager
func NewManager(config Config, opts ...Option) *Manager {
	m := &Manager{
		config:  config,
		logger:  logrus.StandardLogger(),
		tracked: make(map[string]map[Key]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}

	m.masks = NewStore[*image.Gray](config.MaskMaxItems, config.MaskMaxBytes, m.evictHook(KindMask))
	m.results = NewStore[image.Image](config.ResultMaxItems, config.ResultMaxBytes, m.evictHook(KindResult))
	return m
}

// Mask returns a cached mask
func (m *Manager) Mask(key string) (*image.Gray, bool) {
	v, ok := m.masks.Get(key)
	m.observe(KindMask, ok)
	return v, ok
}

// PutMask caches a mask for an image. It returns false when the mask alone
// exceeds the store's byte ceiling.
func (m *Manager) PutMask(imageID, key string, mask *image.Gray, session string) bool {
	if mask == nil {
		return false
	}
	return m.put(KindMask, imageID, key, session, func(meta Meta) bool {
		return m.masks.Put(key, mask, ImageCost(mask.Bounds()), meta)
	})
}

// Result returns a cached composite
func (m *Manager) Result(key string) (image.Image, bool) {
	v, ok := m.results.Get(key)
	m.observe(KindResult, ok)
	return v, ok
}

// PutResult caches a composite for an image
func (m *Manager) PutResult(imageID, key string, img image.Image, session string) bool {
	if img == nil {
		return false
	}
	return m.put(KindResult, imageID, key, session, func(meta Meta) bool {
		return m.results.Put(key, img, ImageCost(img.Bounds()), meta)
	})
}

func (m *Manager) put(kind Kind, imageID, key, session string, store func(Meta) bool) bool {
	k := Key{Kind: kind, Name: key}
	// track first so a concurrent eviction of this key untracks it
	added := m.track(imageID, k)
	if !store(Meta{Image: imageID, Session: session}) {
		// a rejected replace leaves the old entry cached and tracked
		if added {
			m.untrack(imageID, k)
		}
		m.logger.WithFields(logrus.Fields{"cache": kind, "key": key}).Debug("entry exceeds cache budget, not cached")
		return false
	}
	m.updateGauges()
	return true
}

// ClearAll empties both stores and the tracker
func (m *Manager) ClearAll() {
	m.clearAll("all")
}

func (m *Manager) clearAll(reason string) {
	masks := m.masks.Clear()
	results := m.results.Clear()

	m.mu.Lock()
	m.tracked = make(map[string]map[Key]struct{})
	m.mu.Unlock()

	m.metrics.Clears.WithLabelValues(reason).Inc()
	m.updateGauges()
	m.logger.WithFields(logrus.Fields{"masks": masks, "results": results, "reason": reason}).Debug("cleared all caches")
}

// ClearForImage removes every entry derived from one image and returns how many
// entries were removed
func (m *Manager) ClearForImage(imageID string) int {
	m.mu.Lock()
	keys := m.tracked[imageID]
	delete(m.tracked, imageID)
	m.mu.Unlock()

	removed := 0
	for k := range keys {
		if m.remove(k) {
			removed++
		}
	}

	m.metrics.Clears.WithLabelValues("image").Inc()
	m.updateGauges()
	m.logger.WithFields(logrus.Fields{"image": imageID, "removed": removed}).Debug("cleared cache for image")
	return removed
}

// PruneExcept removes entries of every image other than keep
func (m *Manager) PruneExcept(keep string) int {
	m.mu.RLock()
	others := make([]string, 0, len(m.tracked))
	for id := range m.tracked {
		if id != keep {
			others = append(others, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range others {
		removed += m.ClearForImage(id)
	}
	// entries whose tracking raced with an eviction
	match := func(_ string, meta Meta) bool { return meta.Image != keep }
	removed += m.masks.RemoveFunc(match) + m.results.RemoveFunc(match)

	m.updateGauges()
	return removed
}

// KeysFor lists the keys derived from an image
func (m *Manager) KeysFor(imageID string) []Key {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]Key, 0, len(m.tracked[imageID]))
	for k := range m.tracked[imageID] {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// Stats returns current counts and estimated memory
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	tracked := len(m.tracked)
	m.mu.RUnlock()

	s := Stats{
		Masks: StoreStats{
			Items:    m.masks.Len(),
			Bytes:    m.masks.Cost(),
			MaxItems: m.config.MaskMaxItems,
			MaxBytes: m.config.MaskMaxBytes,
		},
		Results: StoreStats{
			Items:    m.results.Len(),
			Bytes:    m.results.Cost(),
			MaxItems: m.config.ResultMaxItems,
			MaxBytes: m.config.ResultMaxBytes,
		},
		TrackedImages: tracked,
	}
	s.TotalBytes = s.Masks.Bytes + s.Results.Bytes
	return s
}

// HandleMemoryPressure drops everything synchronously; later requests run uncached
// until the caches refill
func (m *Manager) HandleMemoryPressure() {
	m.logger.Warn("memory pressure, clearing caches")
	m.clearAll("memory_pressure")
}

func (m *Manager) remove(k Key) bool {
	if k.Kind == KindMask {
		return m.masks.Remove(k.Name)
	}
	return m.results.Remove(k.Name)
}

// track records k under imageID and reports whether it was not tracked before
func (m *Manager) track(imageID string, k Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.tracked[imageID]
	if !ok {
		set = make(map[Key]struct{})
		m.tracked[imageID] = set
	}
	if _, ok := set[k]; ok {
		return false
	}
	set[k] = struct{}{}
	return true
}

func (m *Manager) untrack(imageID string, k Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.tracked[imageID]
	if !ok {
		return
	}
	delete(set, k)
	if len(set) == 0 {
		delete(m.tracked, imageID)
	}
}

func (m *Manager) evictHook(kind Kind) EvictFunc {
	return func(key string, meta Meta, reason EvictReason) {
		m.untrack(meta.Image, Key{Kind: kind, Name: key})
		if reason == EvictCapacity {
			m.metrics.Evictions.WithLabelValues(string(kind)).Inc()
			m.logger.WithFields(logrus.Fields{"cache": kind, "key": key}).Debug("evicted cache entry")
		}
	}
}

func (m *Manager) observe(kind Kind, hit bool) {
	if hit {
		m.metrics.Hits.WithLabelValues(string(kind)).Inc()
		return
	}
	m.metrics.Misses.WithLabelValues(string(kind)).Inc()
}

func (m *Manager) updateGauges() {
	m.metrics.Items.WithLabelValues(string(KindMask)).Set(float64(m.masks.Len()))
	m.metrics.Bytes.WithLabelValues(string(KindMask)).Set(float64(m.masks.Cost()))
	m.metrics.Items.WithLabelValues(string(KindResult)).Set(float64(m.results.Len()))
	m.metrics.Bytes.WithLabelValues(string(KindResult)).Set(float64(m.results.Cost()))
}
