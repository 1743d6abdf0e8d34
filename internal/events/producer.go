package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/banking/refdata-service/internal/config"
	"github.com/banking/refdata-service/internal/domain/audit"
	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/pkg/metrics"
	"github.com/banking/refdata-service/internal/resilience"
)

// Common errors
var (
	ErrProducerClosed = errors.New("producer is closed")
)

const (
	inputTimeout = 5 * time.Second

	// buffered events are given up after this many failed flushes
	maxFlushRetries = 5
)

// Publisher accepts lookup events
type Publisher interface {
	Publish(ctx context.Context, event *audit.LookupEvent) error
}

// LookupProducer publishes lookup events to Kafka. Events that cannot be
// sent are kept in a local buffer and retried by FlushBuffer.
type LookupProducer struct {
	producer sarama.AsyncProducer
	topic    string
	cb       *resilience.CircuitBreaker
	buffer   *resilience.EventBuffer
	metrics  *metrics.Metrics
	log      *logger.Logger
	closed   bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewLookupProducer connects to the configured brokers
func NewLookupProducer(cfg config.KafkaConfig, cb *resilience.CircuitBreaker, m *metrics.Metrics, log *logger.Logger) (*LookupProducer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = "refdata-service"
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 3
	sc.Producer.Retry.Backoff = 100 * time.Millisecond
	if cfg.EnableIdempotent {
		sc.Version = sarama.V2_8_0_0
		sc.Producer.Idempotent = true
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Net.MaxOpenRequests = 1 // Required for idempotent
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewLookupProducerFromAsync(producer, cfg.LookupTopic, cfg.BufferSize, cb, m, log), nil
}

// NewLookupProducerFromAsync wraps an existing async producer
func NewLookupProducerFromAsync(producer sarama.AsyncProducer, topic string, bufferSize int, cb *resilience.CircuitBreaker, m *metrics.Metrics, log *logger.Logger) *LookupProducer {
	p := &LookupProducer{
		producer: producer,
		topic:    topic,
		cb:       cb,
		metrics:  m,
		log:      log.Named("lookup_producer"),
	}
	p.buffer = resilience.NewEventBuffer(bufferSize,
		resilience.WithMaxRetries(maxFlushRetries),
		resilience.WithDropHandler(func(event resilience.BufferedEvent) {
			p.log.Error("dropping lookup event after repeated delivery failures",
				zap.String("event_id", event.ID),
				zap.Int("retries", event.Retries),
			)
		}),
	)

	p.wg.Add(2)
	go p.handleSuccesses()
	go p.handleErrors()

	p.buffer.SetFlushFunc(func(ctx context.Context, event resilience.BufferedEvent) error {
		_, err := p.cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, p.send(ctx, event.Key, event.Payload)
		})
		return err
	})
	return p
}

// Publish sends a lookup event, buffering it when Kafka is unavailable
func (p *LookupProducer) Publish(ctx context.Context, event *audit.LookupEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	data, err := event.JSON()
	if err != nil {
		return fmt.Errorf("failed to serialize lookup event: %w", err)
	}
	key := partitionKey(event)

	_, err = p.cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, p.send(ctx, key, data)
	})
	if err == nil {
		return nil
	}

	p.log.Warn("buffering lookup event due to Kafka unavailability",
		logger.RequestID(event.RequestID),
		logger.ErrorField(err),
	)
	bufferErr := p.buffer.Add(resilience.BufferedEvent{
		ID:        event.EventID,
		Topic:     p.topic,
		Key:       key,
		Payload:   data,
		CreatedAt: time.Now(),
	})
	p.metrics.SetBufferedEvents(p.buffer.Size())
	if bufferErr != nil {
		p.log.Error("failed to buffer lookup event",
			logger.ErrorField(bufferErr),
			logger.RequestID(event.RequestID),
		)
		return bufferErr
	}
	return nil
}

// events for the same identifier land on the same partition
func partitionKey(event *audit.LookupEvent) string {
	return event.Kind + ":" + event.Query
}

func (p *LookupProducer) send(ctx context.Context, key string, data []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
	}

	timer := time.NewTimer(inputTimeout)
	defer timer.Stop()

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("producer input timeout")
	}
}

func (p *LookupProducer) handleSuccesses() {
	defer p.wg.Done()
	for range p.producer.Successes() {
	}
}

func (p *LookupProducer) handleErrors() {
	defer p.wg.Done()
	for err := range p.producer.Errors() {
		p.log.Error("failed to deliver lookup event to Kafka",
			logger.ErrorField(err.Err),
			zap.String("topic", err.Msg.Topic),
		)
	}
}

// FlushBuffer attempts to send all buffered events. It holds the read lock
// for the whole flush so Close cannot shut the input channel underneath it.
func (p *LookupProducer) FlushBuffer(ctx context.Context) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return 0, ErrProducerClosed
	}
	if p.cb.IsOpen() {
		return 0, resilience.ErrCircuitOpen
	}
	n, err := p.buffer.Flush(ctx)
	p.metrics.SetBufferedEvents(p.buffer.Size())
	return n, err
}

// RunFlusher retries buffered events every interval until ctx is done or the
// producer is closed
func (p *LookupProducer) RunFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.buffer.Size() == 0 {
				continue
			}
			n, err := p.FlushBuffer(ctx)
			if errors.Is(err, ErrProducerClosed) {
				return
			}
			if err != nil {
				p.log.Warn("failed to flush buffered lookup events", zap.Int("sent", n), logger.ErrorField(err))
				continue
			}
			p.log.Info("flushed buffered lookup events", zap.Int("sent", n))
		}
	}
}

// BufferSize returns the current buffer size
func (p *LookupProducer) BufferSize() int {
	return p.buffer.Size()
}

// Close closes the producer
func (p *LookupProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.producer.Close(); err != nil {
		return err
	}
	p.wg.Wait()
	return nil
}

// LogPublisher writes lookup events to the log. It is used when no Kafka
// brokers are configured.
type LogPublisher struct {
	log *logger.Logger
}

// NewLogPublisher creates a publisher that only logs
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("lookup_events")}
}

// Publish logs the event at debug level
func (p *LogPublisher) Publish(ctx context.Context, event *audit.LookupEvent) error {
	p.log.WithContext(ctx).Debug("lookup event",
		zap.String("event_id", event.EventID),
		zap.String("kind", event.Kind),
		logger.Query(event.Query),
		zap.String("result", string(event.Result)),
		zap.Int("matches", event.Matches),
	)
	return nil
}
