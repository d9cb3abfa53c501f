package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/legal-rag/models"
	"github.com/upb/legal-rag/repositories"
)

// Recorder appends one QueryLogRecord per served request to the query
// log, asynchronously. Writes never block or fail the request path;
// aggregation over the log is a downstream consumer's concern.
type Recorder struct {
	repo        repositories.QueryLogRepository
	logger      *zap.Logger
	recordChan  chan *models.QueryLogRecord
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	mu          sync.Mutex
}

// Config holds configuration for the Recorder
type Config struct {
	BufferSize  int // Size of the record buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  4096,
		WorkerCount: 2,
	}
}

// NewRecorder creates a new Recorder instance
func NewRecorder(repo repositories.QueryLogRepository, logger *zap.Logger, config Config) *Recorder {
	return &Recorder{
		repo:        repo,
		logger:      logger,
		recordChan:  make(chan *models.QueryLogRecord, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("metrics recorder already started")
	}

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.started = true
	r.logger.Info("started metrics recorder",
		zap.Int("worker_count", r.workerCount),
		zap.Int("buffer_size", r.bufferSize))

	return nil
}

// Stop gracefully stops the recorder, draining pending records.
func (r *Recorder) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return fmt.Errorf("metrics recorder not started")
	}
	r.mu.Unlock()

	r.logger.Info("stopping metrics recorder", zap.Int("pending_records", len(r.recordChan)))
	close(r.recordChan)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("metrics recorder stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("metrics recorder stop timeout after %v", timeout)
	}
}

// Record enqueues a log record without blocking. A full buffer drops
// the record with a warning rather than stalling the request path.
func (r *Recorder) Record(rec *models.QueryLogRecord) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return fmt.Errorf("metrics recorder not started")
	}
	r.mu.Unlock()

	select {
	case r.recordChan <- rec:
		return nil
	default:
		r.logger.Warn("query log buffer full, dropping record",
			zap.String("user_id", rec.UserID),
			zap.Bool("cached", rec.Cached))
		return fmt.Errorf("query log buffer full")
	}
}

// worker processes records from the channel
func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	for rec := range r.recordChan {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.repo.Insert(ctx, rec); err != nil {
			r.logger.Error("failed to insert query log record",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("user_id", rec.UserID))
		}
		cancel()
	}
}

// Stats returns recorder statistics
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		BufferSize:     r.bufferSize,
		PendingRecords: len(r.recordChan),
		WorkerCount:    r.workerCount,
		Started:        r.started,
	}
}

// Stats represents recorder statistics
type Stats struct {
	BufferSize     int
	PendingRecords int
	WorkerCount    int
	Started        bool
}
