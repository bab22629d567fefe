package temporal

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"FinHybrid/internal/domain/models"
	domsvc "FinHybrid/internal/domain/service"
	"FinHybrid/pkg/cache"
	applogger "FinHybrid/pkg/logger"
)

var _ domsvc.TemporalAdapter = (*CachedAdapter)(nil)

const cachePrefix = "temporal"

// CachedAdapter memoises another adapter per feature window. Cache failures never fail a prediction.
type CachedAdapter struct {
	next   domsvc.TemporalAdapter
	cache  cache.Service
	ttl    time.Duration
	l      *applogger.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func NewCachedAdapter(next domsvc.TemporalAdapter, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedAdapter {
	return &CachedAdapter{next: next, cache: c, ttl: ttl, l: l}
}

func (a *CachedAdapter) PredictSequence(ctx context.Context, features []models.FeatureRecord) (models.TemporalOutput, error) {
	key := cache.GenerateKey(cachePrefix, WindowKey(features))

	var out models.TemporalOutput
	err := a.cache.Get(ctx, key, &out)
	if err == nil {
		a.hits.Add(1)
		return out, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) && a.l != nil {
		a.l.Warn("temporal cache read failed", applogger.String("key", key), applogger.Error(err))
	}
	a.misses.Add(1)

	out, err = a.next.PredictSequence(ctx, features)
	if err != nil {
		return models.TemporalOutput{}, err
	}
	if err := a.cache.Set(ctx, key, out, a.ttl); err != nil && a.l != nil {
		a.l.Warn("temporal cache write failed", applogger.String("key", key), applogger.Error(err))
	}
	return out, nil
}

// Stats returns the hit and miss counts since construction.
func (a *CachedAdapter) Stats() (hits, misses int64) {
	return a.hits.Load(), a.misses.Load()
}

// WindowKey digests symbol, timestamps and every attribute of the window. NaN-safe.
func WindowKey(features []models.FeatureRecord) string {
	buf := make([]byte, 0, len(features)*(8*14)+16)
	var scratch [8]byte
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
		buf = append(buf, scratch[:]...)
	}
	for _, r := range features {
		buf = append(buf, r.Symbol...)
		buf = append(buf, 0)
		binary.LittleEndian.PutUint64(scratch[:], uint64(r.Timestamp.UnixNano()))
		buf = append(buf, scratch[:]...)
		for _, v := range r.Technical.Values() {
			putFloat(v)
		}
		for _, v := range r.Statistical.Values() {
			putFloat(v)
		}
		for _, v := range r.Market.Values() {
			putFloat(v)
		}
		putFloat(r.Market.SharesOutstanding)
	}
	return cache.HashKey(buf)
}
