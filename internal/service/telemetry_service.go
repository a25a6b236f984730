// Package service contains the application services that tie the scan
// domain to the inbound and outbound adapters.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aisafe-dev/aisafegate/internal/domain/event"
	"github.com/aisafe-dev/aisafegate/internal/domain/pipeline"
	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

// TelemetryService provides async event emission with a buffered channel
// and background worker. Scan decisions are recorded without blocking
// the proxy hot path.
type TelemetryService struct {
	store     event.Store
	eventChan chan event.Event
	wg        sync.WaitGroup
	logger    *slog.Logger

	batchSize     int
	flushInterval time.Duration
	sendTimeout   time.Duration
	dropCount     atomic.Int64
}

// TelemetryOption configures TelemetryService.
type TelemetryOption func(*TelemetryService)

// WithBatchSize sets the number of events to batch before writing.
func WithBatchSize(size int) TelemetryOption {
	return func(s *TelemetryService) {
		s.batchSize = size
	}
}

// WithFlushInterval sets the interval to flush pending events.
func WithFlushInterval(interval time.Duration) TelemetryOption {
	return func(s *TelemetryService) {
		s.flushInterval = interval
	}
}

// WithChannelSize sets the size of the event channel buffer.
func WithChannelSize(size int) TelemetryOption {
	return func(s *TelemetryService) {
		s.eventChan = make(chan event.Event, size)
	}
}

// WithSendTimeout sets the backpressure timeout. 0 drops immediately
// when the channel is full; >0 blocks up to this duration first.
func WithSendTimeout(timeout time.Duration) TelemetryOption {
	return func(s *TelemetryService) {
		s.sendTimeout = timeout
	}
}

// NewTelemetryService creates a TelemetryService with the given store.
func NewTelemetryService(store event.Store, logger *slog.Logger, opts ...TelemetryOption) *TelemetryService {
	s := &TelemetryService{
		store:         store,
		eventChan:     make(chan event.Event, 1000),
		logger:        logger,
		batchSize:     100,
		flushInterval: time.Second,
		sendTimeout:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background worker that batches and writes events.
func (s *TelemetryService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// RecordScan emits a summary event for a completed scan.
func (s *TelemetryService) RecordScan(requestID, identity string, dir scan.Direction, res *pipeline.AggregateResult) {
	scanners := make([]string, 0, 2)
	seen := make(map[string]bool)
	categories := make([]string, 0, 2)
	seenCat := make(map[string]bool)
	for _, f := range res.Decision.Findings {
		if !seen[f.Scanner] {
			seen[f.Scanner] = true
			scanners = append(scanners, f.Scanner)
		}
		if !seenCat[f.Category] {
			seenCat[f.Category] = true
			categories = append(categories, f.Category)
		}
	}

	s.Record(event.Event{
		Timestamp:      time.Now(),
		RequestID:      requestID,
		Identity:       identity,
		Direction:      string(dir),
		Decision:       res.Decision.Kind.String(),
		Scanners:       scanners,
		FindingCount:   len(res.Decision.Findings),
		Categories:     strings.Join(categories, ","),
		DurationMicros: res.Elapsed.Microseconds(),
	})
}

// Record sends an event to the background worker. Applies backpressure:
// non-blocking send first, then blocks up to sendTimeout before dropping.
func (s *TelemetryService) Record(e event.Event) {
	select {
	case s.eventChan <- e:
		return
	default:
	}

	if s.sendTimeout <= 0 {
		s.recordDrop()
		return
	}

	select {
	case s.eventChan <- e:
	case <-time.After(s.sendTimeout):
		s.recordDrop()
	}
}

func (s *TelemetryService) recordDrop() {
	drops := s.dropCount.Add(1)
	s.logger.Warn("telemetry event dropped", "total_drops", drops)
}

// ChannelDepth returns the number of events waiting in the channel.
func (s *TelemetryService) ChannelDepth() int {
	return len(s.eventChan)
}

// ChannelCapacity returns the capacity of the event channel.
func (s *TelemetryService) ChannelCapacity() int {
	return cap(s.eventChan)
}

// DroppedEvents returns the total number of dropped events.
func (s *TelemetryService) DroppedEvents() int64 {
	return s.dropCount.Load()
}

// Stop signals the worker to stop and waits for it to finish.
// Pending events are flushed before returning.
func (s *TelemetryService) Stop() {
	close(s.eventChan)
	s.wg.Wait()
}

// worker collects and flushes events until the channel closes or the
// context is cancelled.
func (s *TelemetryService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]event.Event, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.eventChan:
			if !ok {
				s.finalFlush(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= s.batchSize {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			for e := range s.eventChan {
				batch = append(batch, e)
			}
			s.finalFlush(batch)
			return
		}
	}
}

// finalFlush writes remaining events with a bounded deadline.
func (s *TelemetryService) finalFlush(batch []event.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(ctx, batch)
}

// flush writes a batch to the store. Errors are logged, not propagated:
// telemetry must not fail proxy operations.
func (s *TelemetryService) flush(ctx context.Context, batch []event.Event) {
	if err := s.store.Append(ctx, batch...); err != nil {
		s.logger.Error("failed to write event batch",
			"error", err,
			"count", len(batch),
		)
	}
}
