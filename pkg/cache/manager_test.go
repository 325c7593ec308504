package cache

import (
	"fmt"
	"image"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/shotcoach/pkg/fingerprint"
)

func newTestManager(t *testing.T, config Config) (*Manager, *prometheus.Registry) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	reg := prometheus.NewRegistry()
	return NewManager(config, WithLogger(logger), WithRegisterer(reg)), reg
}

func fp(id uint64) fingerprint.Fingerprint {
	return fingerprint.Fingerprint{Width: 10, Height: 10, Scale: 1, BitDepth: 32, Hash: id}
}

func gray(w, h int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, w, h))
}

func TestKeys(t *testing.T) {
	f := fp(1)
	assert.Equal(t, "10x10@1-0000000000000001", MaskKey(f))
	assert.Equal(t, "10x10@1-0000000000000001/blur/7.50", ResultKey(f, 7.5))
	assert.Equal(t, "10x10@1-0000000000000001/preview/512/7.50", PreviewKey(f, 7.5, 512))
	assert.NotEqual(t, ResultKey(f, 5), ResultKey(fp(2), 5))
	assert.Equal(t, int64(400), ImageCost(image.Rect(0, 0, 10, 10)))
}

func TestManagerMaskAndResult(t *testing.T) {
	m, reg := newTestManager(t, DefaultConfig())
	a := fp(1)
	id := a.String()

	_, ok := m.Mask(MaskKey(a))
	assert.False(t, ok)

	require.True(t, m.PutMask(id, MaskKey(a), gray(10, 10), "s1"))
	require.True(t, m.PutResult(id, ResultKey(a, 5), image.NewNRGBA(image.Rect(0, 0, 10, 10)), "s1"))

	got, ok := m.Mask(MaskKey(a))
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 10, 10), got.Bounds())

	_, ok = m.Result(ResultKey(a, 5))
	assert.True(t, ok)

	stats := m.Stats()
	assert.Equal(t, 1, stats.Masks.Items)
	assert.Equal(t, int64(400), stats.Masks.Bytes)
	assert.Equal(t, 1, stats.Results.Items)
	assert.Equal(t, int64(800), stats.TotalBytes)
	assert.Equal(t, 1, stats.TrackedImages)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Misses.WithLabelValues("mask")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Hits.WithLabelValues("mask")))
	assert.Equal(t, 400.0, testutil.ToFloat64(m.metrics.Bytes.WithLabelValues("mask")))

	// one series per cache
	n, err := testutil.GatherAndCount(reg, "shotcoach_cache_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.False(t, m.PutMask(id, "nil", nil, "s1"))
}

func TestManagerClearForImage(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	a, b := fp(1), fp(2)

	m.PutMask(a.String(), MaskKey(a), gray(10, 10), "")
	m.PutResult(a.String(), ResultKey(a, 5), gray(10, 10), "")
	m.PutResult(a.String(), PreviewKey(a, 5, 256), gray(5, 5), "")
	m.PutMask(b.String(), MaskKey(b), gray(10, 10), "")

	assert.Equal(t, []Key{
		{Kind: KindMask, Name: MaskKey(a)},
		{Kind: KindResult, Name: ResultKey(a, 5)},
		{Kind: KindResult, Name: PreviewKey(a, 5, 256)},
	}, m.KeysFor(a.String()))

	assert.Equal(t, 3, m.ClearForImage(a.String()))
	assert.Empty(t, m.KeysFor(a.String()))

	_, ok := m.Mask(MaskKey(a))
	assert.False(t, ok)
	_, ok = m.Mask(MaskKey(b))
	assert.True(t, ok)

	stats := m.Stats()
	assert.Equal(t, 1, stats.TrackedImages)
	assert.Equal(t, 0, stats.Results.Items)
	assert.Zero(t, m.ClearForImage("unknown"))
}

func TestManagerPruneExcept(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	for i := uint64(1); i <= 3; i++ {
		f := fp(i)
		m.PutMask(f.String(), MaskKey(f), gray(10, 10), "")
		m.PutResult(f.String(), ResultKey(f, 2), gray(10, 10), "")
	}

	keep := fp(2).String()
	assert.Equal(t, 4, m.PruneExcept(keep))

	stats := m.Stats()
	assert.Equal(t, 1, stats.Masks.Items)
	assert.Equal(t, 1, stats.Results.Items)
	assert.Equal(t, 1, stats.TrackedImages)
	assert.Len(t, m.KeysFor(keep), 2)
}

func TestManagerEvictionUntracks(t *testing.T) {
	m, _ := newTestManager(t, Config{MaskMaxItems: 2, ResultMaxBytes: 1000})

	for i := uint64(1); i <= 3; i++ {
		f := fp(i)
		m.PutMask(f.String(), MaskKey(f), gray(10, 10), "")
	}
	assert.Empty(t, m.KeysFor(fp(1).String()))
	assert.Len(t, m.KeysFor(fp(3).String()), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Evictions.WithLabelValues("mask")))

	// larger than the whole result budget
	assert.False(t, m.PutResult("big", "big", gray(20, 20), ""))
	assert.Empty(t, m.KeysFor("big"))
	assert.Equal(t, 2, m.Stats().TrackedImages)
}

func TestManagerMemoryPressure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m := NewManager(DefaultConfig(), WithLogger(logger))

	f := fp(1)
	m.PutMask(f.String(), MaskKey(f), gray(10, 10), "")
	m.HandleMemoryPressure()

	stats := m.Stats()
	assert.Zero(t, stats.Masks.Items)
	assert.Zero(t, stats.TotalBytes)
	assert.Zero(t, stats.TrackedImages)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)

	// keeps working afterwards
	assert.True(t, m.PutMask(f.String(), MaskKey(f), gray(10, 10), ""))
}

func TestManagerMemoryPressureCountsOneClear(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	f := fp(1)
	m.PutMask(f.String(), MaskKey(f), gray(10, 10), "")

	m.HandleMemoryPressure()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Clears.WithLabelValues("memory_pressure")))
	assert.Zero(t, testutil.ToFloat64(m.metrics.Clears.WithLabelValues("all")))

	m.ClearAll()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Clears.WithLabelValues("all")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Clears.WithLabelValues("memory_pressure")))
}

func TestManagerRejectedReplaceKeepsTracking(t *testing.T) {
	m, _ := newTestManager(t, Config{MaskMaxBytes: 1000})
	f := fp(1)
	id, key := f.String(), MaskKey(f)

	require.True(t, m.PutMask(id, key, gray(10, 10), ""))
	assert.False(t, m.PutMask(id, key, gray(20, 20), ""))

	got, ok := m.Mask(key)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 10, 10), got.Bounds())
	assert.Equal(t, []Key{{Kind: KindMask, Name: key}}, m.KeysFor(id))
	assert.Equal(t, 1, m.ClearForImage(id))
	assert.Zero(t, m.Stats().Masks.Items)

	// a rejected first insert leaves nothing behind
	g := fp(2)
	assert.False(t, m.PutMask(g.String(), MaskKey(g), gray(20, 20), ""))
	assert.Empty(t, m.KeysFor(g.String()))
}

func TestManagerConcurrent(t *testing.T) {
	m, _ := newTestManager(t, Config{MaskMaxItems: 8, MaskMaxBytes: 4000, ResultMaxItems: 8, ResultMaxBytes: 4000})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				f := fp(uint64(i % 12))
				id := f.String()
				m.PutMask(id, MaskKey(f), gray(10, 10), fmt.Sprint(w))
				m.PutResult(id, ResultKey(f, float64(w)), gray(10, 10), "")
				m.Mask(MaskKey(f))
				switch i % 25 {
				case 0:
					m.ClearForImage(id)
				case 10:
					m.PruneExcept(id)
				}
				m.Stats()
			}
		}(w)
	}
	wg.Wait()

	stats := m.Stats()
	assert.LessOrEqual(t, stats.Masks.Items, 8)
	assert.LessOrEqual(t, stats.Masks.Bytes, int64(4000))
	assert.LessOrEqual(t, stats.Results.Items, 8)
	assert.Equal(t, int64(stats.Masks.Items)*400, stats.Masks.Bytes)
	assert.Equal(t, int64(stats.Results.Items)*400, stats.Results.Bytes)
}
