package timer

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TickTransport delivers tick notifications from the Ticker goroutine to
// an owning goroutine's Wheel. The default implementation is an
// in-process buffered channel; spec.md §1 treats the real pipe/eventfd
// IPC wiring as an external collaborator and specifies only this
// message contract (SPEC_FULL.md §4.4).
type TickTransport interface {
	// Notify is called by the ticker goroutine; it must not block.
	Notify()
	// C returns the channel an owning goroutine drains.
	C() <-chan struct{}
}

type chanTransport struct {
	ch chan struct{}
}

func newChanTransport() *chanTransport { return &chanTransport{ch: make(chan struct{}, 4)} }

func (t *chanTransport) Notify() {
	select {
	case t.ch <- struct{}{}:
	default:
		// owning goroutine hasn't drained yet; coalescing is safe because
		// ProcessTick always walks forward from the last processed
		// boundary to "now", not from signal count.
	}
}

func (t *chanTransport) C() <-chan struct{} { return t.ch }

// client is one registered Wheel's tick subscription.
type client struct {
	multiple int
	transport *chanTransport
}

// Ticker is the dedicated ticker goroutine (spec.md §4.4): it owns a
// single periodic timer at the minimum interval (default 50ms) and, on
// each fire, notifies every registered client whose configured multiple
// divides the tick count.
type Ticker struct {
	interval time.Duration

	mu        sync.Mutex
	clients   []*client
	tickCount uint64

	stopCh chan struct{}
	doneCh chan struct{}

	depthGauge prometheus.Gauge
}

// NewTicker starts the ticker goroutine at interval (defaulting to
// TInner/50ms if zero or negative).
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = TInner
	}
	t := &Ticker{
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		depthGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coresig", Subsystem: "timer", Name: "registered_clients",
			Help: "number of wheels registered with the ticker",
		}),
	}
	go t.run()
	return t
}

func (t *Ticker) run() {
	defer close(t.doneCh)
	tk := time.NewTicker(t.interval)
	defer tk.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-tk.C:
			t.mu.Lock()
			t.tickCount++
			cnt := t.tickCount
			clients := make([]*client, len(t.clients))
			copy(clients, t.clients)
			t.mu.Unlock()
			for _, c := range clients {
				if cnt%uint64(c.multiple) == 0 {
					c.transport.Notify()
				}
			}
		}
	}
}

// Stop halts the ticker goroutine. It does not stop any owning
// goroutine that is separately draining a registered Wheel.
func (t *Ticker) Stop() {
	close(t.stopCh)
	<-t.doneCh
}

// Register subscribes a new client at the given multiple of the
// ticker's base interval (1..OS_TIMER_MAX_TIMOUT_MULTIPLE==10, per
// spec.md §4.4's "up to 500ms" bound) and returns the transport its
// owning goroutine should drain.
func (t *Ticker) Register(multiple int) TickTransport {
	if multiple < 1 {
		multiple = 1
	}
	if multiple > 10 {
		multiple = 10
	}
	tr := newChanTransport()
	t.mu.Lock()
	t.clients = append(t.clients, &client{multiple: multiple, transport: tr})
	t.depthGauge.Set(float64(len(t.clients)))
	t.mu.Unlock()
	return tr
}

// Collectors exposes the ticker's prometheus metrics.
func (t *Ticker) Collectors() []prometheus.Collector {
	return []prometheus.Collector{t.depthGauge}
}

// RunWheel is the owning-goroutine loop: on every transport notification
// it calls wheel.ProcessTick, logging (via onErr) any stall error rather
// than terminating, until stop is closed.
func RunWheel(transport TickTransport, wheel *Wheel, onErr func(error), stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-transport.C():
			if err := wheel.ProcessTick(); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
