// SPDX-License-Identifier: BSD-3-Clause

// Package safety implements the Safety & Interlock Evaluator:
// a write allowlist and token-bucket rate limiter guarding tag writes, a
// safe-state output map used by emergency stop, and a per-service interlock
// evaluator gating service commands on tag snapshots.
package safety

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

// TagReader is the subset of the Tag Manager the interlock evaluator needs
// to build its decision-time snapshot: a map passed at decision time, with
// no graph traversal at runtime.
type TagReader interface {
	ReadTag(ctx context.Context, name string) (tagmodel.Value, error)
}

// Config is the static, configuration-derived safety policy.
type Config struct {
	// WritableTags is the allowlist of tag names any write path may target.
	// A tag absent from this set is always refused, regardless of any other
	// configuration.
	WritableTags map[string]bool

	// MaxWritesPerSecond and Burst parameterize the token-bucket rate
	// limiter shared across all writes.
	MaxWritesPerSecond float64
	Burst              int

	// SafeState is the tag_name -> value map emergency stop forces.
	SafeState map[string]any

	// Interlocks maps service name to its interlock bindings.
	Interlocks map[string][]InterlockBinding
}

// InterlockBinding gates a service's START/UNHOLD on a source tag equaling
// a required value.
type InterlockBinding struct {
	SourceTag     string
	RequiredValue any
	Message       string
}

// Controller implements write validation, rate limiting, and safe-state
// lookup. It satisfies the tag manager's SafetyController interface and the
// service manager's SafeStateProvider interface.
type Controller struct {
	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter
	tags    TagReader
}

// NewController builds a Controller from cfg, reading interlock source tags
// through tags at decision time. A non-positive MaxWritesPerSecond disables
// rate limiting (every write is allowed through the limiter, though the
// allowlist still applies).
func NewController(cfg Config, tags TagReader) *Controller {
	c := &Controller{cfg: cfg, tags: tags}
	if cfg.MaxWritesPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxWritesPerSecond), burst)
	}
	return c
}

// AllowWrite reports whether a write to tagName is permitted: present in the
// allowlist and within the rate budget. It satisfies tagmgr.SafetyController.
func (c *Controller) AllowWrite(tagName string) error {
	c.mu.RLock()
	allowed := c.cfg.WritableTags[tagName]
	c.mu.RUnlock()
	if !allowed {
		return fmt.Errorf("safety: tag %q is not in the writable allowlist", tagName)
	}
	if !c.CheckRateLimit() {
		return fmt.Errorf("safety: write rate limit exceeded for tag %q", tagName)
	}
	return nil
}

// CheckRateLimit consumes one token from the shared write budget, returning
// false if none is available.
func (c *Controller) CheckRateLimit() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// SafeStateTags returns the configured emergency-stop output map. It
// satisfies servicemgr.SafeStateProvider.
func (c *Controller) SafeStateTags() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.cfg.SafeState))
	for k, v := range c.cfg.SafeState {
		out[k] = v
	}
	return out
}

// Interlocked reports whether service is currently blocked from START/UNHOLD
// by any of its configured interlock bindings. It builds a one-shot snapshot
// of every binding's source tag before evaluating, rather than caching
// values, so the decision always reflects the current PLC state. It
// satisfies servicemgr.InterlockEvaluator.
func (c *Controller) Interlocked(ctx context.Context, service string) (bool, string) {
	c.mu.RLock()
	bindings := c.cfg.Interlocks[service]
	c.mu.RUnlock()

	for _, b := range bindings {
		val, err := c.tags.ReadTag(ctx, b.SourceTag)
		if err != nil {
			return true, fmt.Sprintf("interlock source %q unreadable: %v", b.SourceTag, err)
		}
		if val.Value != b.RequiredValue {
			return true, b.Message
		}
	}
	return false, ""
}
