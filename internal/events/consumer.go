package events

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Order lifecycle topics consumed from the order service.
const (
	TopicOrderPlaced    = "order.placed"
	TopicOrderConfirmed = "order.confirmed"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderDelivered = "order.delivered"
)

const (
	defaultWorkers = 8
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// messageReader is the slice of kafka.Reader the consumer uses. Narrowed to an
// interface so the dispatch and commit logic can be driven without a broker.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads order lifecycle events and feeds them to the reservation
// coordinator. Jobs are dispatched to a fixed worker by topic/partition: the
// order service partitions by lot key, so all events touching one lot arrive
// on one partition and are handled by one worker in offset order. Offsets are
// committed only after handling, and because a partition never spans workers
// a commit can never acknowledge an earlier, still-unhandled offset. A crash
// redelivers from the last commit; the idempotency ledger makes redelivery
// harmless.
type Consumer struct {
	reader  messageReader
	handler OrderHandler
	logger  *zap.Logger
	workers int
}

func NewConsumer(brokers []string, groupID string, handler OrderHandler, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		GroupTopics: []string{
			TopicOrderPlaced,
			TopicOrderConfirmed,
			TopicOrderCancelled,
			TopicOrderDelivered,
		},
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:  reader,
		handler: handler,
		logger:  logger,
		workers: defaultWorkers,
	}
}

type consumerJob struct {
	msg   kafka.Message
	kind  string
	event model.OrderEvent
}

// Run blocks until the context is cancelled or the reader fails fatally.
func (c *Consumer) Run(ctx context.Context) error {
	jobs := make([]chan consumerJob, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan consumerJob, 64)
		wg.Add(1)
		go func(ch <-chan consumerJob) {
			defer wg.Done()
			c.worker(ctx, ch)
		}(jobs[i])
	}

	c.logger.Info("order event consumer started", zap.Int("workers", c.workers))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				break
			}
			c.logger.Error("failed to fetch order event", zap.Error(err))
			continue
		}

		kind := kindFromTopic(msg.Topic)
		var event model.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// Malformed payloads can never succeed: log, ack, move on.
			c.logger.Error("skipping malformed order event",
				zap.String("topic", msg.Topic),
				zap.Error(err),
			)
			c.commit(ctx, msg)
			continue
		}

		jobs[workerIndex(msg.Topic, msg.Partition, c.workers)] <- consumerJob{msg: msg, kind: kind, event: event}
	}

	for _, ch := range jobs {
		close(ch)
	}
	wg.Wait()

	c.logger.Info("order event consumer stopped")
	return c.reader.Close()
}

func (c *Consumer) worker(ctx context.Context, jobs <-chan consumerJob) {
	for job := range jobs {
		c.process(ctx, job)
	}
}

// process retries transient failures with exponential backoff and only
// commits the offset once the event is handled or classified permanent.
func (c *Consumer) process(ctx context.Context, job consumerJob) {
	backoff := initialBackoff
	for {
		err := c.handler.HandleOrderEvent(ctx, job.kind, job.event)
		if err == nil {
			break
		}
		if apperror.Permanent(err) {
			c.logger.Warn("skipping order event after permanent failure",
				zap.String("kind", job.kind),
				zap.String("order_id", job.event.OrderID.String()),
				zap.Error(err),
			)
			break
		}

		c.logger.Warn("transient failure handling order event, retrying",
			zap.String("kind", job.kind),
			zap.String("order_id", job.event.OrderID.String()),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			// Shutting down without committing: the event is redelivered.
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}

	c.commit(ctx, job.msg)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("failed to commit offset",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
}

// kindFromTopic maps "order.placed" to "placed" etc.
func kindFromTopic(topic string) string {
	return strings.TrimPrefix(topic, "order.")
}

// workerIndex pins a topic/partition to one worker. A Kafka commit is a
// per-partition high-water mark, so offsets of one partition must be handled
// and committed by a single goroutine in fetch order.
func workerIndex(topic string, partition, workers int) int {
	h := fnv.New32a()
	h.Write([]byte(topic))
	h.Write([]byte(strconv.Itoa(partition)))
	return int(h.Sum32() % uint32(workers))
}
