package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

const windowSlots = 5

type windowSlot struct {
	index     int64 // slot start in units of width since the epoch
	endpoints map[string]*types.EndpointStats
}

// RequestWindow aggregates request counts, errors and latency per endpoint
// over a sliding window made of fixed-width slots. Old slots are recycled
// lazily on write and skipped on read.
type RequestWindow struct {
	mu    sync.Mutex
	width time.Duration
	slots [windowSlots]windowSlot
}

// NewRequestWindow creates a window of the given span split into five slots.
func NewRequestWindow(span time.Duration) *RequestWindow {
	w := &RequestWindow{width: span / windowSlots}
	if w.width <= 0 {
		w.width = time.Minute
	}
	for i := range w.slots {
		w.slots[i].index = -1
	}
	return w
}

func (w *RequestWindow) slotIndex(at time.Time) int64 {
	return at.UnixNano() / int64(w.width)
}

// Observe records one request. Responses with status >= 500 count as errors.
func (w *RequestWindow) Observe(endpoint string, statusCode int, seconds float64, at time.Time) {
	idx := w.slotIndex(at)

	w.mu.Lock()
	defer w.mu.Unlock()

	slot := &w.slots[idx%windowSlots]
	if slot.index != idx {
		slot.index = idx
		slot.endpoints = make(map[string]*types.EndpointStats)
	}
	st, ok := slot.endpoints[endpoint]
	if !ok {
		st = &types.EndpointStats{Endpoint: endpoint}
		slot.endpoints[endpoint] = st
	}
	st.Requests++
	st.TotalDuration += seconds
	if statusCode >= 500 {
		st.Errors++
	}
}

// Stats returns per-endpoint totals for slots still inside the window at
// now, sorted by endpoint.
func (w *RequestWindow) Stats(now time.Time) []types.EndpointStats {
	cur := w.slotIndex(now)

	w.mu.Lock()
	merged := make(map[string]*types.EndpointStats)
	for i := range w.slots {
		slot := &w.slots[i]
		if slot.index < 0 || cur-slot.index >= windowSlots || slot.index > cur {
			continue
		}
		for ep, st := range slot.endpoints {
			m, ok := merged[ep]
			if !ok {
				m = &types.EndpointStats{Endpoint: ep}
				merged[ep] = m
			}
			m.Requests += st.Requests
			m.Errors += st.Errors
			m.TotalDuration += st.TotalDuration
		}
	}
	w.mu.Unlock()

	out := make([]types.EndpointStats, 0, len(merged))
	for _, st := range merged {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}
