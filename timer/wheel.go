// Package timer implements the hierarchical two-level tick-wheel timer
// (spec.md §4.4): an outer chain of 100s-span nodes, each holding an
// inner sub-chain of 50ms-span nodes, single-owner-goroutine semantics,
// and a packed 64-bit timerId stable for the life of an event.
package timer

import (
	"time"

	"github.com/seandai318/coresig/cerr"
)

const (
	// TOuter is the span of one outer chain node (spec.md §3/§4.4).
	TOuter = 100 * time.Second
	// TInner is the span of one inner sub-chain node.
	TInner = 50 * time.Millisecond
	// MaxSubChainNodes is the maximum number of sub-nodes a fully
	// populated outer node can hold: TOuter / TInner.
	MaxSubChainNodes = int(TOuter / TInner)
	// MaxTimeoutDuration is the longest duration StartTimer accepts.
	MaxTimeoutDuration = 10 * 24 * time.Hour

	// timerId bit layout (spec.md §9 REDESIGN FLAG resolution: the
	// canonical 26/20/18 layout, packed MSB-first as
	// outer<<(20+18) | sub<<18 | event).
	chainBits    = 26
	subChainBits = 20
	eventBits    = 18
	chainMask    = 1<<chainBits - 1
	subChainMask = 1<<subChainBits - 1
	eventMask    = 1<<eventBits - 1
)

func packTimerID(chainID, subChainID, eventID uint32) uint64 {
	return uint64(chainID&chainMask)<<(subChainBits+eventBits) |
		uint64(subChainID&subChainMask)<<eventBits |
		uint64(eventID&eventMask)
}

func unpackTimerID(id uint64) (chainID, subChainID, eventID uint32) {
	chainID = uint32((id >> (subChainBits + eventBits)) & chainMask)
	subChainID = uint32((id >> eventBits) & subChainMask)
	eventID = uint32(id & eventMask)
	return
}

// TimeoutFunc is invoked exactly once, on the owning goroutine, when a
// timer fires.
type TimeoutFunc func(timerID uint64, data any)

type event struct {
	id          uint32
	timerID     uint64
	data        any
	cb          TimeoutFunc
	restartMsec int64 // originally requested duration, cached for RestartTimer
}

type subChainNode struct {
	id          uint32
	startMsec   int64
	events      []*event
	nextEventID uint32
}

type chainNode struct {
	id          uint32
	startSec    int64
	subNodes    map[uint32]*subChainNode
	subIndex    map[int64]uint32 // subKey (startMsec) -> subNode id
	nextSubID   uint32
}

// Wheel is one owning goroutine's two-level tick wheel. All mutating
// methods (StartTimer, StopTimer, RestartTimer, ProcessTick) must only
// be called from the owning goroutine (spec.md §5); Wheel performs no
// internal locking.
type Wheel struct {
	clock      func() time.Time
	defaultCB  TimeoutFunc
	originMsec int64
	lastProc   int64 // last fully-processed boundary, in epoch ms

	chainNodes  map[uint32]*chainNode
	chainIndex  map[int64]uint32 // chainKey (startSec) -> chain node id
	nextChainID uint32
}

// NewWheel constructs an empty Wheel. clock defaults to time.Now if nil;
// tests supply a deterministic clock to avoid real sleeps.
func NewWheel(clock func() time.Time, defaultCB TimeoutFunc) *Wheel {
	if clock == nil {
		clock = time.Now
	}
	w := &Wheel{
		clock:      clock,
		defaultCB:  defaultCB,
		chainNodes: make(map[uint32]*chainNode),
		chainIndex: make(map[int64]uint32),
	}
	now := clock().UnixMilli()
	step := int64(TInner / time.Millisecond)
	w.originMsec = now
	// lastProc is set one step before "now"'s own boundary so that a
	// zero-delay StartTimer (which lands exactly on now's boundary) is
	// still in front of the wheel and gets picked up by the very next
	// ProcessTick, rather than being born already "in the past".
	w.lastProc = now - now%step - step
	return w
}

func (w *Wheel) chainKey(sec int64) int64 {
	span := int64(TOuter / time.Second)
	return (sec / span) * span
}

func (w *Wheel) subKey(msec int64) int64 {
	span := int64(TInner / time.Millisecond)
	return (msec / span) * span
}

func (w *Wheel) findOrCreateChain(targetMsec int64) *chainNode {
	key := w.chainKey(targetMsec / 1000)
	if id, ok := w.chainIndex[key]; ok {
		return w.chainNodes[id]
	}
	w.nextChainID++
	cn := &chainNode{
		id:       w.nextChainID,
		startSec: key,
		subNodes: make(map[uint32]*subChainNode),
		subIndex: make(map[int64]uint32),
	}
	w.chainNodes[cn.id] = cn
	w.chainIndex[key] = cn.id
	return cn
}

func (w *Wheel) findOrCreateSub(cn *chainNode, targetMsec int64) *subChainNode {
	key := w.subKey(targetMsec)
	if id, ok := cn.subIndex[key]; ok {
		return cn.subNodes[id]
	}
	cn.nextSubID++
	sn := &subChainNode{id: cn.nextSubID, startMsec: key}
	cn.subNodes[sn.id] = sn
	cn.subIndex[key] = sn.id
	return sn
}

// StartTimer schedules cb(data) to run once, d after now. It returns the
// sentinel id 0 if out of memory, d exceeds MaxTimeoutDuration, or no
// callback is reachable (spec.md §4.4 failure modes; §8 boundary: d=0
// fires on the very next tick, d>=10 days returns 0).
func (w *Wheel) StartTimer(d time.Duration, cb TimeoutFunc, data any) uint64 {
	if d < 0 || d >= MaxTimeoutDuration {
		return 0
	}
	if cb == nil && w.defaultCB == nil {
		return 0
	}
	nowMsec := w.clock().UnixMilli()
	target := nowMsec + d.Milliseconds()

	cn := w.findOrCreateChain(target)
	sn := w.findOrCreateSub(cn, target)

	if sn.nextEventID >= 1<<eventBits {
		return 0
	}
	sn.nextEventID++
	ev := &event{id: sn.nextEventID, cb: cb, data: data, restartMsec: d.Milliseconds()}
	ev.timerID = packTimerID(cn.id, sn.id, ev.id)
	sn.events = append(sn.events, ev)
	return ev.timerID
}

// StartTick is an alias of StartTimer kept for the original's separate
// entry point name (periodic re-arming is the caller's responsibility,
// done by re-calling StartTimer from inside the callback or via
// RestartTimer).
func (w *Wheel) StartTick(d time.Duration, cb TimeoutFunc, data any) uint64 {
	return w.StartTimer(d, cb, data)
}

func (w *Wheel) findEvent(timerID uint64) (*chainNode, *subChainNode, int) {
	chainID, subID, eventID := unpackTimerID(timerID)
	cn, ok := w.chainNodes[chainID]
	if !ok {
		return nil, nil, -1
	}
	sn, ok := cn.subNodes[subID]
	if !ok {
		return cn, nil, -1
	}
	for i, ev := range sn.events {
		if ev.id == eventID {
			return cn, sn, i
		}
	}
	return cn, sn, -1
}

// StopTimer cancels a pending event. It returns false (without side
// effects) if timerID is unknown, matching spec.md §4.4.
func (w *Wheel) StopTimer(timerID uint64) bool {
	_, sn, i := w.findEvent(timerID)
	if sn == nil || i < 0 {
		return false
	}
	sn.events = append(sn.events[:i], sn.events[i+1:]...)
	return true
}

// RestartTimer stops timerID and re-arms it at its originally requested
// duration, returning the new id (0 on failure).
func (w *Wheel) RestartTimer(timerID uint64) uint64 {
	_, sn, i := w.findEvent(timerID)
	if sn == nil || i < 0 {
		return 0
	}
	ev := sn.events[i]
	sn.events = append(sn.events[:i], sn.events[i+1:]...)
	return w.StartTimer(time.Duration(ev.restartMsec)*time.Millisecond, ev.cb, ev.data)
}

// ProcessTick walks the wheel forward from the last processed boundary
// to "now" (per w.clock), firing every elapsed sub-node's events in
// insertion order. If more than one TOuter has elapsed since the last
// call, that is a catastrophic stall and ProcessTick returns a
// SystemFailure error without firing anything (spec.md §4.4 "Jitter and
// missed ticks"). Smaller overshoots drain every elapsed sub-node in
// order before returning.
func (w *Wheel) ProcessTick() error {
	nowMsec := w.clock().UnixMilli()
	elapsed := nowMsec - w.lastProc
	if elapsed > int64(TOuter/time.Millisecond) {
		return cerr.New(cerr.SystemFailure, "timer: wheel stalled by %dms, exceeds TOuter", elapsed)
	}
	step := int64(TInner / time.Millisecond)
	for boundary := w.lastProc + step; boundary <= nowMsec; boundary += step {
		w.fireBoundary(boundary)
		w.lastProc = boundary
	}
	return nil
}

func (w *Wheel) fireBoundary(boundaryMsec int64) {
	chainKey := w.chainKey(boundaryMsec / 1000)
	cid, ok := w.chainIndex[chainKey]
	if !ok {
		return
	}
	cn := w.chainNodes[cid]
	subKey := w.subKey(boundaryMsec)
	sid, ok := cn.subIndex[subKey]
	if !ok {
		return
	}
	sn := cn.subNodes[sid]
	events := sn.events
	sn.events = nil
	delete(cn.subIndex, subKey)
	delete(cn.subNodes, sid)

	for _, ev := range events {
		cb := ev.cb
		if cb == nil {
			cb = w.defaultCB
		}
		if cb != nil {
			cb(ev.timerID, ev.data)
		}
	}
}

// PendingCount returns the total number of not-yet-fired events across
// the whole wheel, used for metrics and tests.
func (w *Wheel) PendingCount() int {
	n := 0
	for _, cn := range w.chainNodes {
		for _, sn := range cn.subNodes {
			n += len(sn.events)
		}
	}
	return n
}
