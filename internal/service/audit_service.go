package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/toolwarden/toolwarden/internal/domain/audit"
)

// AuditService records audit entries through a buffered channel and a
// background worker, so the request path never blocks on sink I/O. A
// failed sink write is logged, never propagated to the caller.
type AuditService struct {
	store         audit.Store
	entryChan     chan audit.Entry
	wg            sync.WaitGroup
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration

	// enabled gates all recording; when false Record is a no-op.
	enabled bool
	// logAllOperations controls whether success entries are recorded.
	// Failures are always recorded.
	logAllOperations bool

	// Backpressure: bounded channel plus a send timeout, then drop.
	channelSize int
	sendTimeout time.Duration
	dropCount   atomic.Int64

	// Channel depth warning, rate limited to once per second.
	warningThreshold int
	lastWarning      atomic.Int64

	// Depth percentage that switches the worker to faster flushing.
	adaptiveFlushThreshold int
}

// AuditOption configures AuditService.
type AuditOption func(*AuditService)

// WithAuditDisabled turns off all recording.
func WithAuditDisabled() AuditOption {
	return func(s *AuditService) {
		s.enabled = false
	}
}

// WithSuccessLogging controls whether successful operations are
// recorded. Failures are recorded regardless.
func WithSuccessLogging(on bool) AuditOption {
	return func(s *AuditService) {
		s.logAllOperations = on
	}
}

// WithBatchSize sets the number of entries to batch before writing.
func WithBatchSize(size int) AuditOption {
	return func(s *AuditService) {
		s.batchSize = size
	}
}

// WithFlushInterval sets the interval to flush pending entries.
func WithFlushInterval(interval time.Duration) AuditOption {
	return func(s *AuditService) {
		s.flushInterval = interval
	}
}

// WithChannelSize sets the size of the entry channel buffer.
func WithChannelSize(size int) AuditOption {
	return func(s *AuditService) {
		s.entryChan = make(chan audit.Entry, size)
		s.channelSize = size
	}
}

// WithSendTimeout sets the backpressure timeout. Zero drops immediately
// when the channel is full; a positive value blocks up to that duration
// before dropping.
func WithSendTimeout(timeout time.Duration) AuditOption {
	return func(s *AuditService) {
		s.sendTimeout = timeout
	}
}

// WithWarningThreshold sets the channel depth warning percentage (0-100).
// A warning is logged when channel depth exceeds this percentage of
// capacity.
func WithWarningThreshold(percent int) AuditOption {
	return func(s *AuditService) {
		s.warningThreshold = clampPercent(percent)
	}
}

// WithAdaptiveFlushThreshold sets the channel depth percentage that
// triggers faster flushing. When depth exceeds it, the flush interval
// drops to a quarter of normal. Zero disables adaptive flushing.
func WithAdaptiveFlushThreshold(percent int) AuditOption {
	return func(s *AuditService) {
		s.adaptiveFlushThreshold = clampPercent(percent)
	}
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// NewAuditService creates an AuditService writing to the given store.
func NewAuditService(store audit.Store, logger *slog.Logger, opts ...AuditOption) *AuditService {
	defaultChannelSize := 1000
	s := &AuditService{
		store:                  store,
		entryChan:              make(chan audit.Entry, defaultChannelSize),
		logger:                 logger,
		batchSize:              100,
		flushInterval:          time.Second,
		enabled:                true,
		logAllOperations:       true,
		channelSize:            defaultChannelSize,
		sendTimeout:            100 * time.Millisecond,
		warningThreshold:       80,
		adaptiveFlushThreshold: 80,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins the background worker that batches and writes entries.
func (s *AuditService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record queues an entry for the background worker. The call is
// fire-and-forget: it never returns an error, and when the channel
// stays full past the send timeout the entry is dropped and counted.
// Recording is skipped entirely when auditing is disabled, and success
// entries are skipped when success logging is off.
func (s *AuditService) Record(entry audit.Entry) {
	if !s.enabled {
		return
	}
	if !s.logAllOperations && entry.Result == audit.ResultSuccess {
		return
	}

	if s.warningThreshold > 0 {
		depth := len(s.entryChan)
		threshold := s.channelSize * s.warningThreshold / 100
		if depth >= threshold {
			s.warnChannelDepth(depth)
		}
	}

	// Fast path: non-blocking send.
	select {
	case s.entryChan <- entry:
		return
	default:
	}

	if s.sendTimeout <= 0 {
		s.recordDrop(entry)
		return
	}

	// Slow path: block up to the send timeout.
	select {
	case s.entryChan <- entry:
	case <-time.After(s.sendTimeout):
		s.recordDrop(entry)
	}
}

// recordDrop counts and logs a dropped entry.
func (s *AuditService) recordDrop(entry audit.Entry) {
	drops := s.dropCount.Add(1)
	s.logger.Warn("audit entry dropped",
		"user_id", entry.UserID,
		"action", entry.Action,
		"resource", entry.Resource,
		"total_drops", drops,
	)
}

// warnChannelDepth logs a capacity warning at most once per second.
func (s *AuditService) warnChannelDepth(depth int) {
	now := time.Now().UnixNano()
	last := s.lastWarning.Load()

	if now-last < int64(time.Second) {
		return
	}

	if s.lastWarning.CompareAndSwap(last, now) {
		s.logger.Warn("audit channel approaching capacity",
			"depth", depth,
			"capacity", s.channelSize,
			"percent", depth*100/s.channelSize,
		)
	}
}

// Enabled reports whether recording is active.
func (s *AuditService) Enabled() bool {
	return s.enabled
}

// DroppedEntries returns the total number of dropped entries.
func (s *AuditService) DroppedEntries() int64 {
	return s.dropCount.Load()
}

// ChannelDepth returns the current channel usage.
func (s *AuditService) ChannelDepth() int {
	return len(s.entryChan)
}

// ChannelCapacity returns the channel buffer size.
func (s *AuditService) ChannelCapacity() int {
	return s.channelSize
}

// Stop signals the worker to stop and waits for it to finish. Pending
// entries are flushed before returning. All producers must be done
// before Stop is called.
func (s *AuditService) Stop() {
	close(s.entryChan)
	s.wg.Wait()
}

// worker is the background goroutine that collects and flushes entries.
func (s *AuditService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]audit.Entry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	fastMode := false

	for {
		select {
		case entry, ok := <-s.entryChan:
			if !ok {
				// Channel closed, final flush with a bounded deadline.
				if len(batch) > 0 {
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					s.flush(flushCtx, batch)
					cancel()
				}
				return
			}
			batch = append(batch, entry)

			shouldFlush := len(batch) >= s.batchSize

			// Flush early when the channel is under pressure.
			if !shouldFlush && s.adaptiveFlushThreshold > 0 {
				depthPercent := len(s.entryChan) * 100 / s.channelSize
				if depthPercent >= s.adaptiveFlushThreshold {
					shouldFlush = true
				}
			}

			if shouldFlush {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

			if s.adaptiveFlushThreshold > 0 {
				depthPercent := len(s.entryChan) * 100 / s.channelSize

				if depthPercent >= s.adaptiveFlushThreshold && !fastMode {
					ticker.Reset(s.flushInterval / 4)
					fastMode = true
					s.logger.Debug("audit flush entering fast mode",
						"depth_percent", depthPercent,
						"interval", s.flushInterval/4,
					)
				} else if depthPercent < s.adaptiveFlushThreshold && fastMode {
					ticker.Reset(s.flushInterval)
					fastMode = false
					s.logger.Debug("audit flush returning to normal mode",
						"depth_percent", depthPercent,
						"interval", s.flushInterval,
					)
				}
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Drain whatever is already queued, then flush with a
			// bounded deadline.
			for {
				select {
				case entry, ok := <-s.entryChan:
					if !ok {
						s.finalFlush(batch)
						return
					}
					batch = append(batch, entry)
				default:
					s.finalFlush(batch)
					return
				}
			}
		}
	}
}

// finalFlush writes any remaining batch with its own deadline.
func (s *AuditService) finalFlush(batch []audit.Entry) {
	if len(batch) == 0 {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	s.flush(flushCtx, batch)
	cancel()
}

// flush writes a batch to the store. Errors are logged, never
// propagated: a broken sink must not fail the guarded operation.
func (s *AuditService) flush(ctx context.Context, batch []audit.Entry) {
	if err := s.store.Append(ctx, batch...); err != nil {
		s.logger.Error("failed to write audit batch",
			"error", err,
			"count", len(batch),
		)
	}
}
