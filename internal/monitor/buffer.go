package monitor

import (
	"sync"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// DefaultBufferMax caps the snapshot buffer while the durable store is down.
const DefaultBufferMax = 10000

type bufferEntry struct {
	seq  uint64
	snap types.MetricSnapshot
}

// Buffer is an append-only staging area for metric snapshots. The flush
// loop reads with Peek and removes only what it persisted with DiscardThrough,
// so snapshots appended during a flush are kept.
type Buffer struct {
	mu      sync.Mutex
	entries []bufferEntry
	nextSeq uint64
	max     int
	dropped uint64
}

// NewBuffer creates a buffer holding at most max snapshots; when full the
// oldest snapshot is dropped. max <= 0 uses DefaultBufferMax.
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = DefaultBufferMax
	}
	return &Buffer{max: max}
}

// Append queues a snapshot. It reports false when an older snapshot had to
// be dropped to make room.
func (b *Buffer) Append(s types.MetricSnapshot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	kept := true
	if len(b.entries) >= b.max {
		b.entries = b.entries[1:]
		b.dropped++
		kept = false
	}
	b.entries = append(b.entries, bufferEntry{seq: b.nextSeq, snap: s})
	return kept
}

// Peek returns a copy of the queued snapshots and the sequence number of the
// newest one, for use with DiscardThrough.
func (b *Buffer) Peek() ([]types.MetricSnapshot, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) == 0 {
		return nil, 0
	}
	out := make([]types.MetricSnapshot, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.snap
	}
	return out, b.entries[len(b.entries)-1].seq
}

// DiscardThrough removes every snapshot with sequence <= seq.
func (b *Buffer) DiscardThrough(seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := 0
	for i < len(b.entries) && b.entries[i].seq <= seq {
		i++
	}
	b.entries = append([]bufferEntry(nil), b.entries[i:]...)
}

// Len returns the number of queued snapshots.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Dropped returns how many snapshots were discarded because the buffer was full.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
