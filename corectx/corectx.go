// Package corectx wires the process-wide singletons every coresig
// component shares: the slab pool, the ticker goroutine, and the
// logger's module levels (spec.md §6 external interfaces). It mirrors
// the teacher's single process-wide Context pattern (compare the
// original's core/meta owner-singleton wiring) scaled down to this
// module's three collaborators.
package corectx

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seandai318/coresig/nlog"
	"github.com/seandai318/coresig/premem"
	"github.com/seandai318/coresig/timer"
)

// Config selects the process-wide wiring at Init time.
type Config struct {
	// Debug enables premem's provenance tracking (buntdb-backed).
	Debug bool
	// TickerInterval is the ticker goroutine's base period; defaults to
	// timer.TInner when zero.
	TickerInterval int64 // milliseconds; 0 means timer.TInner
	// LogLevel is the default nlog severity; the zero value (EMERG) is
	// treated as unset and defaults to nlog.INFO.
	LogLevel nlog.Severity
	// LogFile, if non-empty, mirrors every log line to this path.
	LogFile string
}

// Context is the process-wide handle returned by Init: the slab pool,
// the shared ticker, and the logger, plus a registry of wheels
// registered against the ticker so Shutdown can stop them in order.
type Context struct {
	Pool   *premem.Pool
	Ticker *timer.Ticker
	Log    *nlog.Logger

	mu     sync.Mutex
	stopCh []chan struct{}
}

var (
	defaultOnce sync.Once
	defaultCtx  *Context
)

// Init constructs a new Context from cfg. Most processes call this once
// at startup and use Default thereafter.
func Init(cfg Config) (*Context, error) {
	level := cfg.LogLevel
	if level == 0 {
		level = nlog.INFO
	}
	logger := nlog.New(level)
	if cfg.LogFile != "" {
		if err := logger.MirrorToFile(cfg.LogFile); err != nil {
			return nil, err
		}
	}

	interval := timer.TInner
	if cfg.TickerInterval > 0 {
		interval = time.Duration(cfg.TickerInterval) * time.Millisecond
	}

	ctx := &Context{
		Pool:   premem.NewPool(cfg.Debug),
		Ticker: timer.NewTicker(interval),
		Log:    logger,
	}
	return ctx, nil
}

// Default lazily initializes and returns the process-wide Context with
// default settings, mirroring nlog.Default's package-level singleton
// pattern.
func Default() *Context {
	defaultOnce.Do(func() {
		ctx, err := Init(Config{})
		if err != nil {
			// Init can only fail opening a log file, which Default never
			// requests; a failure here means the process environment is
			// broken beyond what this package can recover from.
			panic(err)
		}
		defaultCtx = ctx
	})
	return defaultCtx
}

// RegisterWheel subscribes w to the Context's ticker at multiple ticks
// of the ticker's base interval and starts the owning goroutine that
// drains it, returning a stop function.
func (c *Context) RegisterWheel(w *timer.Wheel, multiple int, onErr func(error)) (stop func()) {
	transport := c.Ticker.Register(multiple)
	stopCh := make(chan struct{})

	c.mu.Lock()
	c.stopCh = append(c.stopCh, stopCh)
	c.mu.Unlock()

	go timer.RunWheel(transport, w, onErr, stopCh)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// close only if Shutdown (or an earlier stop call) has not already
		// taken this channel off the list and closed it.
		for i, ch := range c.stopCh {
			if ch == stopCh {
				c.stopCh = append(c.stopCh[:i], c.stopCh[i+1:]...)
				close(stopCh)
				return
			}
		}
	}
}

// Collectors aggregates every component's prometheus collectors for a
// single registration call against the process registry.
func (c *Context) Collectors() []prometheus.Collector {
	var out []prometheus.Collector
	out = append(out, c.Pool.Collectors()...)
	out = append(out, c.Ticker.Collectors()...)
	return out
}

// Shutdown stops every registered wheel's owning goroutine and the
// ticker itself. It does not release the slab pool: premem has no
// process-teardown path, matching the original's process-lifetime
// allocator model (spec.md Non-goals: no defragmentation/release-to-OS).
func (c *Context) Shutdown() {
	c.mu.Lock()
	stopChans := c.stopCh
	c.stopCh = nil
	c.mu.Unlock()

	for _, ch := range stopChans {
		close(ch)
	}
	c.Ticker.Stop()
}

