package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zerotocryptodev/gateway/internal/models"
	"github.com/zerotocryptodev/gateway/internal/observability"
)

const (
	rejectionBatchSize  = 100
	rejectionFlushEvery = 5 * time.Second
)

// EventWriter is implemented by repository.RateLimitEventRepository.
type EventWriter interface {
	CreateBatch(ctx context.Context, events []models.RateLimitEvent) error
}

// RejectionRecorder batches rate-limit rejections into the audit table in the
// background. Recording never blocks; a full queue drops the event.
type RejectionRecorder struct {
	writer     EventWriter
	events     chan models.RateLimitEvent
	batchSize  int
	flushEvery time.Duration
	logger     logrus.FieldLogger
	metrics    *observability.Metrics
	done       chan struct{}
}

func NewRejectionRecorder(writer EventWriter, bufferSize int, logger logrus.FieldLogger, metrics *observability.Metrics) *RejectionRecorder {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &RejectionRecorder{
		writer:     writer,
		events:     make(chan models.RateLimitEvent, bufferSize),
		batchSize:  rejectionBatchSize,
		flushEvery: rejectionFlushEvery,
		logger:     logger,
		metrics:    metrics,
		done:       make(chan struct{}),
	}
}

// Queues an event, dropping it if the buffer is full
func (r *RejectionRecorder) Record(event models.RateLimitEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case r.events <- event:
		r.metrics.IncRejectionRecorded()
	default:
		r.metrics.IncRejectionDropped()
	}
}

// Starts the background worker. It flushes every batchSize events or
// flushEvery, and once more when ctx is cancelled.
func (r *RejectionRecorder) Start(ctx context.Context) {
	go func() {
		defer close(r.done)

		batch := make([]models.RateLimitEvent, 0, r.batchSize)
		ticker := time.NewTicker(r.flushEvery)
		defer ticker.Stop()

		for {
			select {
			case ev := <-r.events:
				batch = append(batch, ev)
				if len(batch) >= r.batchSize {
					batch = r.flush(batch)
				}
			case <-ticker.C:
				batch = r.flush(batch)
			case <-ctx.Done():
				r.drain(&batch)
				r.flush(batch)
				return
			}
		}
	}()
}

// Blocks until the worker has flushed and exited
func (r *RejectionRecorder) Wait() {
	<-r.done
}

func (r *RejectionRecorder) drain(batch *[]models.RateLimitEvent) {
	for {
		select {
		case ev := <-r.events:
			*batch = append(*batch, ev)
		default:
			return
		}
	}
}

func (r *RejectionRecorder) flush(batch []models.RateLimitEvent) []models.RateLimitEvent {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.writer.CreateBatch(ctx, batch); err != nil {
		r.logger.WithError(err).WithField("events", len(batch)).Warn("failed to store rate limit rejections")
	}

	return make([]models.RateLimitEvent, 0, r.batchSize)
}
