// Package audit records one exchange per RAG request in the background so
// that persisting the audit trail never slows down a chat response.
package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upb/rag-chat/models"
	"github.com/upb/rag-chat/repositories"
	"go.uber.org/zap"
)

// insertTimeout bounds a single repository write.
const insertTimeout = 5 * time.Second

// ExchangeEvent is one exchange waiting to be persisted.
type ExchangeEvent struct {
	Exchange *models.Exchange
	Priority int
}

// Service persists exchanges asynchronously through a pool of workers.
// Without a repository exchanges are written to the log only.
type Service struct {
	repo        repositories.ExchangeRepository
	logger      *zap.Logger
	eventChan   chan *ExchangeEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	mu          sync.RWMutex
	started     bool
	stopped     bool

	processed atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// Config holds configuration for the Service
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewService creates a new Service instance. repo may be nil.
func NewService(repo repositories.ExchangeRepository, logger *zap.Logger, config Config) *Service {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *ExchangeEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize),
		zap.Bool("persistent", s.repo != nil))

	return nil
}

// Stop stops accepting exchanges and waits for the queued ones to be
// written, up to timeout.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.stopped = true
	pending := len(s.eventChan)
	// senders hold the read lock, so none is mid-send here
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully",
			zap.Int64("processed", s.processed.Load()),
			zap.Int64("dropped", s.dropped.Load()),
			zap.Int64("failed", s.failed.Load()))
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record implements chat.ExchangeRecorder. A full buffer drops the exchange.
func (s *Service) Record(_ context.Context, exchange *models.Exchange) {
	if exchange == nil {
		return
	}
	if err := s.LogEvent(&ExchangeEvent{Exchange: exchange, Priority: 1}); err != nil {
		s.logger.Debug("exchange not recorded",
			zap.String("exchange_id", exchange.ID.String()),
			zap.Error(err))
	}
}

// LogEvent queues an event without blocking.
func (s *Service) LogEvent(event *ExchangeEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not started")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("exchange_id", event.Exchange.ID.String()),
			zap.String("conversation_id", event.Exchange.ConversationID))
		return fmt.Errorf("audit event buffer full")
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.failed.Add(1)
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("exchange_id", event.Exchange.ID.String()),
				zap.String("conversation_id", event.Exchange.ConversationID))
			continue
		}
		s.processed.Add(1)
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *Service) processEvent(event *ExchangeEvent) error {
	ex := event.Exchange
	if s.repo == nil {
		s.logger.Info("exchange",
			zap.String("exchange_id", ex.ID.String()),
			zap.String("conversation_id", ex.ConversationID),
			zap.String("request_id", ex.RequestID),
			zap.String("mode", string(ex.Mode)),
			zap.String("status", string(ex.Status)),
			zap.String("model", ex.Model),
			zap.Int("documents", ex.Documents),
			zap.Int("tokens_used", ex.TokensUsed),
			zap.Int64("latency_ms", ex.LatencyMs))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := s.repo.Insert(ctx, ex); err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}
	return nil
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
		Processed:     s.processed.Load(),
		Dropped:       s.dropped.Load(),
		Failed:        s.failed.Load(),
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int   `json:"buffer_size"`
	PendingEvents int   `json:"pending_events"`
	WorkerCount   int   `json:"worker_count"`
	Started       bool  `json:"started"`
	Processed     int64 `json:"processed"`
	Dropped       int64 `json:"dropped"`
	Failed        int64 `json:"failed"`
}
