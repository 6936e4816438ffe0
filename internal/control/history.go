package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
)

const DefaultHistoryLimit = 256

// Decision records one handled request.
type Decision struct {
	Seq      uint64
	At       time.Time
	Client   ClientID
	Kind     RequestKind
	Response Response
	Mode     Mode
}

func (d Decision) String() string {
	return fmt.Sprintf(
		"seq=%d at=%s client=%q request=%s response=%s mode=%s",
		d.Seq, d.At.Format(time.RFC3339Nano), d.Client, d.Kind, d.Response, d.Mode,
	)
}

// History is a bounded FIFO of recent decisions.
type History struct {
	mu    sync.Mutex
	limit int
	seq   uint64
	items *queue.Queue
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit, items: queue.New()}
}

// Record appends d, assigning its sequence number, and evicts the oldest
// entry once the limit is reached.
func (h *History) Record(d Decision) Decision {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	d.Seq = h.seq
	if d.At.IsZero() {
		d.At = time.Now()
	}
	h.items.Add(d)
	for h.items.Length() > h.limit {
		h.items.Remove()
	}
	return d
}

// Recent returns up to limit decisions, oldest first.
func (h *History) Recent(limit int) []Decision {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.items.Length()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Decision, 0, limit)
	for i := n - limit; i < n; i++ {
		out = append(out, h.items.Get(i).(Decision))
	}
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.items.Length()
}
