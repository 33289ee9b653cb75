package service

import (
	"context"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/repository"
	"log/slog"
	"sync"
	"time"
)

const recentEventCapacity = 256

// Notifier forwards an alert event to a downstream channel (incident
// system, dashboard, pager).
type Notifier interface {
	Notify(event domain.AlertEvent) error
}

// LogNotifier writes alert events to the structured log. It is the default
// sink when no external channel is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(event domain.AlertEvent) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Alert event",
		slog.String("event_id", event.ID),
		slog.String("type", event.Type),
		slog.String("severity", event.Severity),
		slog.Any("details", event.Details))
	return nil
}

// AlertService is the audit/alert sink: a bounded queue drained by workers,
// plus a ring buffer of the most recent events for the API. Publishing never
// blocks and never fails the caller; when the queue is full the event is
// dropped and counted.
type AlertService struct {
	notifier     Notifier
	messageQueue chan domain.AlertEvent
	workers      int
	shutdownChan chan struct{}
	wg           sync.WaitGroup

	mu      sync.RWMutex
	recent  []domain.AlertEvent
	dropped uint64

	logger *slog.Logger
}

var _ repository.AlertSink = (*AlertService)(nil)

func NewAlertService(notifier Notifier, workers int, logger *slog.Logger) *AlertService {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = &LogNotifier{Logger: logger}
	}
	if workers <= 0 {
		workers = 1
	}

	s := &AlertService{
		notifier:     notifier,
		messageQueue: make(chan domain.AlertEvent, 1000),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	s.startWorkers()

	return s
}

func (s *AlertService) Publish(event domain.AlertEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.remember(event)

	select {
	case s.messageQueue <- event:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.logger.Warn("Alert queue full, event dropped",
			slog.String("event_id", event.ID),
			slog.String("type", event.Type))
	}
}

// Recent returns the retained events, newest last.
func (s *AlertService) Recent() []domain.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AlertEvent, len(s.recent))
	copy(out, s.recent)
	return out
}

func (s *AlertService) Dropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

func (s *AlertService) remember(event domain.AlertEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append(s.recent, event)
	if len(s.recent) > recentEventCapacity {
		s.recent = s.recent[len(s.recent)-recentEventCapacity:]
	}
}

func (s *AlertService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func(workerID int) {
			defer s.wg.Done()

			for {
				select {
				case event := <-s.messageQueue:
					if err := s.notifier.Notify(event); err != nil {
						// Sink failures are logged and never surfaced to the
						// validation path.
						s.logger.Error("Alert delivery failed",
							slog.Int("worker", workerID),
							slog.String("event_id", event.ID),
							slog.String("error", err.Error()))
					}
				case <-s.shutdownChan:
					return
				}
			}
		}(i)
	}
}

func (s *AlertService) Shutdown(ctx context.Context) error {
	close(s.shutdownChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Alert service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
