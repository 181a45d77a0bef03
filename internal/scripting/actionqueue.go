package scripting

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Kinubi/zephyr-engine/internal/diagnostics"
)

// ActionKind discriminates the payload format the main-thread dispatcher
// expects for an Action, per §3.5/§4.E.4.
type ActionKind int

const (
	// ScriptResult payloads are the script's result message bytes verbatim
	// (e.g. "4" for a script that evaluates "return 2 + 2"), per §8 S4.
	ScriptResult ActionKind = iota
	// CVarChange payloads are "handler\x00name\x00old\x00new", per §8 S5.
	CVarChange
	// Custom payloads are implementor-specified; this engine encodes them
	// with protowire (see EncodeCustomEvent/DecodeCustomEvent).
	Custom
)

func (k ActionKind) String() string {
	switch k {
	case ScriptResult:
		return "script-result"
	case CVarChange:
		return "cvar-change"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// Action is a typed, opaque-payload message from a worker to the
// main-thread dispatcher.
type Action struct {
	Kind    ActionKind
	Payload []byte
}

// QueueStats mirrors the teacher's message-queue QueueStats shape: enqueued,
// dequeued and dropped counters plus current/peak depth.
type QueueStats struct {
	Enqueued uint64
	Dequeued uint64
	Dropped  uint64
	Depth    int
	MaxDepth int
}

// ActionQueue is the bounded MPSC queue of §3.5/§4.E.3: many producer
// goroutines Push, one consumer (the main thread) TryPops each frame. Push
// fails fast with diagnostics.ErrQueueFull once capacity is reached; the
// producer keeps ownership of (and must free/discard) its payload in that
// case. The consumer owns freeing — in Go terms, simply letting the popped
// Action become garbage — once it has TryPop'd an Action.
type ActionQueue struct {
	mu       sync.Mutex
	items    []Action
	capacity int

	enqueued atomic.Uint64
	dequeued atomic.Uint64
	dropped  atomic.Uint64
	maxDepth atomic.Int64
}

// NewActionQueue creates a bounded action queue. capacity must be at least 1.
func NewActionQueue(capacity int) *ActionQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &ActionQueue{capacity: capacity}
}

// Push appends action if the queue has room, preserving per-producer FIFO
// order and a single total linearized order across producers (the mutex
// critical section is the linearization point). It returns
// diagnostics.ErrQueueFull once the queue is at capacity; the caller is
// responsible for discarding/pooling its own payload in that case.
func (q *ActionQueue) Push(action Action) error {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		q.dropped.Add(1)
		return diagnostics.ErrQueueFull
	}
	q.items = append(q.items, action)
	depth := len(q.items)
	q.mu.Unlock()

	q.enqueued.Add(1)
	for {
		peak := q.maxDepth.Load()
		if int64(depth) <= peak || q.maxDepth.CompareAndSwap(peak, int64(depth)) {
			break
		}
	}
	return nil
}

// TryPop returns the next action in push order, or false if the queue is
// currently empty. Intended to be called by the single consumer (main
// thread) once per frame until it returns false.
func (q *ActionQueue) TryPop() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Action{}, false
	}
	a := q.items[0]
	q.items = q.items[1:]
	q.dequeued.Add(1)
	return a, true
}

// Stats returns a snapshot of queue activity.
func (q *ActionQueue) Stats() QueueStats {
	q.mu.Lock()
	depth := len(q.items)
	q.mu.Unlock()
	return QueueStats{
		Enqueued: q.enqueued.Load(),
		Dequeued: q.dequeued.Load(),
		Dropped:  q.dropped.Load(),
		Depth:    depth,
		MaxDepth: int(q.maxDepth.Load()),
	}
}

// EncodeCVarChange builds the literal "handler\x00name\x00old\x00new"
// payload §8 S5 specifies.
func EncodeCVarChange(handler, name, oldValue, newValue string) []byte {
	return []byte(strings.Join([]string{handler, name, oldValue, newValue}, "\x00"))
}

// DecodeCVarChange parses a payload built by EncodeCVarChange.
func DecodeCVarChange(payload []byte) (handler, name, oldValue, newValue string, ok bool) {
	parts := strings.Split(string(payload), "\x00")
	if len(parts) != 4 {
		return "", "", "", "", false
	}
	return parts[0], parts[1], parts[2], parts[3], true
}
