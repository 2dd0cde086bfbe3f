package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/traktion/antftp/internal/event"
)

const ringSize = 60

// Collector tracks gateway statistics using lock-free atomic counters. It
// is fed from the event stream of the storage backend and reconciler.
type Collector struct {
	opsCompleted    atomic.Int64
	opsFailed       atomic.Int64
	bytesRead       atomic.Int64
	bytesWritten    atomic.Int64
	commits         atomic.Int64
	published       atomic.Int64
	publishFailed   atomic.Int64
	syncsPushed     atomic.Int64
	syncsSkipped    atomic.Int64
	syncsFailed     atomic.Int64
	eventsProcessed atomic.Int64
	startTime       time.Time

	addrMu     sync.RWMutex
	address    string
	syncedAddr string

	// Ring buffer, written only by Tick.
	mu        sync.Mutex
	moved     [ringSize]int64 // bytes read+written per tick
	ringIdx   int
	ringCount int // samples written, capped at ringSize
	lastMoved int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	Address       string
	SyncedAddress string
	OpsCompleted  int64
	OpsFailed     int64
	BytesRead     int64
	BytesWritten  int64
	Commits       int64
	Published     int64
	PublishFailed int64
	SyncsPushed   int64
	SyncsSkipped  int64
	SyncsFailed   int64
	Elapsed       time.Duration
}

// Record applies one event to the counters.
func (c *Collector) Record(ev event.Event) {
	c.eventsProcessed.Add(1)
	switch ev.Type {
	case event.OpCompleted:
		c.opsCompleted.Add(1)
		switch ev.Op {
		case "get":
			c.bytesRead.Add(ev.Size)
		case "put":
			c.bytesWritten.Add(ev.Size)
		}
	case event.OpFailed:
		c.opsFailed.Add(1)
	case event.AddressCommitted:
		c.commits.Add(1)
		c.setAddress(ev.Address, false)
	case event.PointerPublished:
		c.published.Add(1)
	case event.PublishFailed:
		c.publishFailed.Add(1)
	case event.SyncPushed:
		c.syncsPushed.Add(1)
		c.setAddress(ev.Address, true)
	case event.SyncSkipped:
		c.syncsSkipped.Add(1)
	case event.SyncFailed:
		c.syncsFailed.Add(1)
	}
}

func (c *Collector) setAddress(addr string, synced bool) {
	c.addrMu.Lock()
	defer c.addrMu.Unlock()
	if synced {
		c.syncedAddr = addr
		return
	}
	c.address = addr
}

// Consume records events from ch until ctx is cancelled or ch is closed,
// ticking the throughput ring once per interval. Each event is also passed
// to the observers after it is recorded.
func (c *Collector) Consume(ctx context.Context, ch <-chan event.Event, interval time.Duration, observers ...func(event.Event)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.Record(ev)
			for _, fn := range observers {
				fn(ev)
			}
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	c.addrMu.RLock()
	addr, synced := c.address, c.syncedAddr
	c.addrMu.RUnlock()

	return Snapshot{
		Address:       addr,
		SyncedAddress: synced,
		OpsCompleted:  c.opsCompleted.Load(),
		OpsFailed:     c.opsFailed.Load(),
		BytesRead:     c.bytesRead.Load(),
		BytesWritten:  c.bytesWritten.Load(),
		Commits:       c.commits.Load(),
		Published:     c.published.Load(),
		PublishFailed: c.publishFailed.Load(),
		SyncsPushed:   c.syncsPushed.Load(),
		SyncsSkipped:  c.syncsSkipped.Load(),
		SyncsFailed:   c.syncsFailed.Load(),
		Elapsed:       c.Elapsed(),
	}
}

// EventsProcessed returns how many events Record has seen.
func (c *Collector) EventsProcessed() int64 { return c.eventsProcessed.Load() }

// Tick records the bytes moved since the previous tick into the ring buffer.
func (c *Collector) Tick() {
	current := c.bytesRead.Load() + c.bytesWritten.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.moved[c.ringIdx] = current - c.lastMoved
	c.lastMoved = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingThroughput returns the average bytes per tick over the last n ticks.
func (c *Collector) RollingThroughput(n int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		sum += c.moved[(c.ringIdx-1-i+ringSize)%ringSize]
	}
	return float64(sum) / float64(count)
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"ops=%d failed=%d read=%s written=%s commits=%d published=%d publish_failed=%d synced=%d sync_failed=%d",
		s.OpsCompleted, s.OpsFailed, FormatBytes(s.BytesRead), FormatBytes(s.BytesWritten),
		s.Commits, s.Published, s.PublishFailed, s.SyncsPushed, s.SyncsFailed,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
