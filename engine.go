// Package embedfall computes vector embeddings for text across wildly
// different runtime environments. The engine probes its inference backends
// in priority order, serves requests through the fastest usable one, falls
// back down the chain when a backend fails at runtime, and degrades to a
// zero vector when nothing better remains, so Embed never fails outright.
// Callers that need to know how degraded the engine is inspect Status or
// SemanticAvailable rather than catching errors.
package embedfall

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/helmavik/embedfall/backend"
)

// Engine is the embedding facade. Construct it with New, drive it with
// Initialize/Embed, and release it with Close. It is safe for concurrent
// use.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	coord  *coordinator
	cache  *queryCache
	perf   *perfTracker

	// redisMu guards the redis field: Close tears the owned client down
	// while async cache writes may still be in flight.
	redisMu    sync.RWMutex
	redis      *redis.Client
	redisOwned bool
}

// redisClient returns the current Redis client, or nil when the tier is
// disabled or already torn down.
func (e *Engine) redisClient() *redis.Client {
	e.redisMu.RLock()
	defer e.redisMu.RUnlock()
	return e.redis
}

// Option customizes engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	chain      []backend.Backend
	hook       FallbackHook
	redis      *redis.Client
	redisOwned bool
}

// WithChain substitutes the fallback chain, ordered fastest first. The
// engine appends the lexical terminal if the chain does not already end
// with one. Intended for dependency injection and tests.
func WithChain(chain ...backend.Backend) Option {
	return func(o *engineOptions) { o.chain = chain }
}

// WithFallbackHook registers an observer for runtime backend changes.
func WithFallbackHook(hook FallbackHook) Option {
	return func(o *engineOptions) { o.hook = hook }
}

// WithRedis supplies an existing Redis client for the shared cache tier.
// The caller keeps ownership; Close will not close it.
func WithRedis(client *redis.Client) Option {
	return func(o *engineOptions) {
		o.redis = client
		o.redisOwned = false
	}
}

// New constructs an engine. Configuration errors fail here, fast; nothing
// is probed or loaded until Initialize.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	chain := o.chain
	if chain == nil {
		chain = backend.BuildChain(cfg.settings(), cfg.EnableGPU, cfg.EnableSIMD, logger)
	}
	if n := len(chain); n == 0 || chain[n-1].Kind() != backend.KindLexical {
		chain = append(chain, backend.NewLexical(cfg.Dimensions))
	}

	cache, err := newQueryCache(cfg.CacheCapacity)
	if err != nil {
		return nil, err
	}

	redisClient := o.redis
	if redisClient == nil && cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("%w: redis_url: %v", ErrConfig, err)
		}
		redisClient = redis.NewClient(redisOpts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, shared cache tier disabled", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		}
		o.redisOwned = true
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		cache:      cache,
		perf:       newPerfTracker(),
		redis:      redisClient,
		redisOwned: o.redisOwned,
	}
	e.coord = newCoordinator(chain, logger, o.hook)
	return e, nil
}

// Initialize walks the fallback chain once, recording which backends are
// available and which failed, and selects the first available one as
// active. It is idempotent, and concurrent callers share a single probe
// walk. Probe failures are reported through the returned status, never as
// an error.
func (e *Engine) Initialize(ctx context.Context) Status {
	e.coord.initialize(ctx)
	return e.Status()
}

// Embed returns the embedding vector for text. It ensures initialization,
// serves cache hits, and on a miss computes through the active backend,
// advancing down the chain on failure. The terminal lexical backend cannot
// fail, so under normal operation the only returned error is the caller's
// own context cancellation.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	e.coord.initialize(ctx)

	if vec, ok := e.cache.Get(text); ok {
		return vec, nil
	}
	if vec, ok := e.redisGet(ctx, text); ok {
		e.cache.Put(text, vec)
		return vec, nil
	}

	for {
		active, idx, ok := e.coord.current()
		if !ok {
			return nil, fmt.Errorf("engine not initialized")
		}

		start := time.Now()
		vec, err := active.Embed(ctx, text)
		if err == nil && len(vec) != e.cfg.Dimensions {
			err = fmt.Errorf("backend %s returned %d dimensions, want %d",
				active.Kind(), len(vec), e.cfg.Dimensions)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !e.coord.advance(idx, err) {
				// Chain exhausted; structurally unreachable while the
				// lexical terminal is intact.
				return make([]float32, e.cfg.Dimensions), nil
			}
			continue
		}

		e.perf.observe(active.Kind(), time.Since(start))
		e.cache.Put(text, vec)
		e.redisPut(text, vec)
		return vec, nil
	}
}

// EmbedBatch embeds each text sequentially; output order matches input
// order.
func (e *Engine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Status returns a read-only snapshot of the backend state.
func (e *Engine) Status() Status {
	status := e.coord.snapshot()
	status.Performance = e.perf.snapshot(e.coord.chainKinds())
	return status
}

// SemanticAvailable reports whether the active backend produces real
// semantic vectors, i.e. anything better than the lexical zero vector.
func (e *Engine) SemanticAvailable() bool {
	active, _, ok := e.coord.current()
	return ok && active.Kind().Semantic()
}

// Dimensions returns the configured vector length, constant for the
// engine's lifetime.
func (e *Engine) Dimensions() int { return e.cfg.Dimensions }

// ClearCache empties the local query cache. The shared Redis tier, when
// configured, expires through its TTL instead.
func (e *Engine) ClearCache() { e.cache.Clear() }

// Close releases every backend resource handle and resets the engine to
// uninitialized; Initialize may run again afterwards. Safe to call before
// or without Initialize, and idempotent. An engine-owned Redis client is
// closed for good.
func (e *Engine) Close() error {
	err := e.coord.reset()
	e.cache.Clear()
	e.perf.reset()

	e.redisMu.Lock()
	var owned *redis.Client
	if e.redisOwned {
		owned = e.redis
		e.redis = nil
	}
	e.redisMu.Unlock()

	if owned != nil {
		if cerr := owned.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
