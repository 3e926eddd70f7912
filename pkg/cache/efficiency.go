package cache

import (
	"sync"

	"github.com/papercomputeco/blackboard/pkg/snapshot"
)

// cachedDiscount is the fraction of the normal input price saved on a cache
// read.
const cachedDiscount = 0.9

// Efficiency tracks cached versus freshly computed prompt tokens across a
// run. It is safe for concurrent use.
type Efficiency struct {
	mu sync.Mutex

	totalPromptTokens uint64
	cachedTokens      uint64
	freshTokens       uint64
	hits              uint64
	misses            uint64
	thumbprint        snapshot.Thumbprint
}

// EfficiencyReport is a point-in-time copy of the tracker.
type EfficiencyReport struct {
	TotalPromptTokens uint64              `json:"total_prompt_tokens"`
	CachedTokens      uint64              `json:"cached_tokens"`
	FreshTokens       uint64              `json:"fresh_tokens"`
	CacheHits         uint64              `json:"cache_hits"`
	CacheMisses       uint64              `json:"cache_misses"`
	HitRatio          float64             `json:"hit_ratio"`
	EstimatedSavings  float64             `json:"estimated_savings"`
	ActiveThumbprint  snapshot.Thumbprint `json:"active_thumbprint,omitempty"`
}

// RecordCall records one model call's usage: total prompt tokens and how
// many of them were served from cache.
func (e *Efficiency) RecordCall(totalPrompt, cached uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalPromptTokens += totalPrompt
	e.cachedTokens += cached
	if totalPrompt > cached {
		e.freshTokens += totalPrompt - cached
	}

	if cached > 0 {
		e.hits++
	} else {
		e.misses++
	}
}

// SetThumbprint records the snapshot thumbprint active for this period.
func (e *Efficiency) SetThumbprint(t snapshot.Thumbprint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.thumbprint = t
}

// HitRatio is the share of calls that had any cache hit, in [0, 1].
func (e *Efficiency) HitRatio() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hitRatio()
}

// EstimatedSavings is the estimated share of prompt cost saved by caching.
func (e *Efficiency) EstimatedSavings() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.estimatedSavings()
}

// Report returns a snapshot of all counters.
func (e *Efficiency) Report() EfficiencyReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	return EfficiencyReport{
		TotalPromptTokens: e.totalPromptTokens,
		CachedTokens:      e.cachedTokens,
		FreshTokens:       e.freshTokens,
		CacheHits:         e.hits,
		CacheMisses:       e.misses,
		HitRatio:          e.hitRatio(),
		EstimatedSavings:  e.estimatedSavings(),
		ActiveThumbprint:  e.thumbprint,
	}
}

func (e *Efficiency) hitRatio() float64 {
	total := e.hits + e.misses
	if total == 0 {
		return 0
	}
	return float64(e.hits) / float64(total)
}

func (e *Efficiency) estimatedSavings() float64 {
	if e.totalPromptTokens == 0 {
		return 0
	}
	return float64(e.cachedTokens) * cachedDiscount / float64(e.totalPromptTokens)
}
