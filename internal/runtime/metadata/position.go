package metadata

import (
	"context"
	"strconv"
	"sync"
)

// Partition returns the partition the record is pinned to.
func (m Metadata) Partition() (int32, bool) {
	raw, ok := m[KeyPartition]
	if !ok || raw == "" {
		return 0, false
	}
	p, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || p < 0 {
		return 0, false
	}
	return int32(p), true
}

// WithPartition returns a copy of m pinned to partition.
func (m Metadata) WithPartition(partition int32) Metadata {
	return m.With(KeyPartition, strconv.FormatInt(int64(partition), 10))
}

// SentPosition receives the partition and offset a transport assigned to a
// published record. Transports that know them bind a reader while the
// record is in flight; the reader is called once Publish has returned.
type SentPosition struct {
	mu   sync.Mutex
	read func() (int32, int64)
}

// Bind registers the reader of the assigned position.
func (p *SentPosition) Bind(read func() (partition int32, offset int64)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read = read
}

// Get returns the assigned position, if a transport reported one.
func (p *SentPosition) Get() (partition int32, offset int64, ok bool) {
	p.mu.Lock()
	read := p.read
	p.mu.Unlock()
	if read == nil {
		return 0, 0, false
	}
	partition, offset = read()
	return partition, offset, true
}

type sentPositionKey struct{}

// WithSentPosition attaches p to ctx.
func WithSentPosition(ctx context.Context, p *SentPosition) context.Context {
	return context.WithValue(ctx, sentPositionKey{}, p)
}

// SentPositionFromContext returns the SentPosition attached to ctx.
func SentPositionFromContext(ctx context.Context) (*SentPosition, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(sentPositionKey{}).(*SentPosition)
	return p, ok && p != nil
}
