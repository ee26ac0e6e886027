package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/rowanhale/fakturo/internal/domain"
)

// Retry policy: every job gets MaxAttempts deliveries with exponential
// backoff starting at initialBackoff (5s, 10s, 20s). After the final
// failed attempt the job is terminated and recorded, never retried.
const (
	MaxAttempts    = 3
	initialBackoff = 5 * time.Second

	historySize = 100
	fetchWait   = 2 * time.Second
	ackWait     = 60 * time.Second
)

// BackoffFor returns the redelivery delay after a failed attempt
// (1-based). Attempt 1 waits 5s, attempt 2 waits 10s.
func BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return initialBackoff << (attempt - 1)
}

// Role selects connection behavior. Consumers must never give up
// reconnecting to the broker; producers fail fast instead of queueing
// publishes forever.
type Role int

const (
	RoleProducer Role = iota
	RoleConsumer
)

const producerMaxReconnects = 10

// Job is one delivery of an envelope to a handler.
type Job struct {
	Envelope *Envelope

	// Attempt is 1-based; Attempt == MaxAttempts is the last try.
	Attempt int
}

// Final reports whether this delivery is the job's last attempt.
func (j *Job) Final() bool {
	return j.Attempt >= MaxAttempts
}

// Handler processes one job delivery. Returning nil acks the job. A
// retryable error schedules redelivery with backoff; a non-retryable
// error, or any error on the final attempt, terminates the job.
type Handler func(ctx context.Context, job *Job) error

// Broker is a thin JetStream wrapper providing the two named topics
// with at-least-once delivery and the retry policy above.
type Broker struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	logger  zerolog.Logger
	history *History
}

// Connect dials NATS and initializes JetStream.
func Connect(url, name string, role Role, logger zerolog.Logger) (*Broker, error) {
	maxReconnects := producerMaxReconnects
	if role == RoleConsumer {
		maxReconnects = -1
	}

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(role == RoleConsumer),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("queue disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("queue reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Error().Err(nc.LastError()).Msg("queue connection closed")
		}),
	)
	if err != nil {
		return nil, domain.WrapError(err, domain.EUPSTREAM, "queue.connect", "failed to connect to broker")
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, domain.WrapError(err, domain.EUPSTREAM, "queue.connect", "failed to create JetStream context")
	}

	return &Broker{
		nc:      nc,
		js:      js,
		logger:  logger,
		history: NewHistory(historySize),
	}, nil
}

// Close drains the connection so published messages are flushed.
func (b *Broker) Close() {
	if b.nc != nil && !b.nc.IsClosed() {
		_ = b.nc.Drain()
	}
}

// History exposes the recent finished-job buffer.
func (b *Broker) History() *History {
	return b.history
}

// EnsureTopics creates the backing streams if they do not exist yet.
// Safe to call from every process at startup.
func (b *Broker) EnsureTopics() error {
	for _, topic := range []string{TopicEmailInvoice, TopicEmailReceipt} {
		name := streamName(topic)
		_, err := b.js.StreamInfo(name)
		if err == nil {
			continue
		}
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return domain.WrapError(err, domain.EUPSTREAM, "queue.ensure", "failed to inspect stream "+name)
		}
		_, err = b.js.AddStream(&nats.StreamConfig{
			Name:      name,
			Subjects:  []string{subjectFor(topic)},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			return domain.WrapError(err, domain.EUPSTREAM, "queue.ensure", "failed to create stream "+name)
		}
	}
	return nil
}

// Enqueue publishes a payload to a topic.
func (b *Broker) Enqueue(ctx context.Context, topic string, payload interface{}) error {
	env, err := NewEnvelope(topic, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "queue.enqueue", "failed to marshal envelope")
	}
	if _, err := b.js.Publish(subjectFor(topic), data, nats.Context(ctx)); err != nil {
		return domain.WrapError(err, domain.EUPSTREAM, "queue.enqueue", "failed to publish job")
	}
	b.logger.Debug().Str("topic", topic).Msg("job enqueued")
	return nil
}

// Consume pulls jobs from a topic until the context is cancelled. Each
// job is delivered to at most one consumer at a time; an in-flight job
// finishes before Consume returns.
func (b *Broker) Consume(ctx context.Context, topic, durable string, handler Handler) error {
	sub, err := b.js.PullSubscribe(subjectFor(topic), durable,
		nats.AckExplicit(),
		nats.MaxDeliver(MaxAttempts),
		nats.AckWait(ackWait),
		nats.BindStream(streamName(topic)),
	)
	if err != nil {
		return domain.WrapError(err, domain.EUPSTREAM, "queue.consume", "failed to subscribe to "+topic)
	}
	defer func() { _ = sub.Unsubscribe() }()

	b.logger.Info().Str("topic", topic).Str("durable", durable).Msg("consuming topic")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			b.logger.Error().Err(err).Str("topic", topic).Msg("fetch failed")
			continue
		}

		for _, msg := range msgs {
			b.dispatch(ctx, topic, msg, handler)
		}
	}
}

// dispatch runs the handler for one delivery and settles the message.
func (b *Broker) dispatch(ctx context.Context, topic string, msg *nats.Msg, handler Handler) {
	attempt := 1
	var enqueuedAt time.Time
	if meta, err := msg.Metadata(); err == nil {
		attempt = int(meta.NumDelivered)
	}

	env, err := DecodeEnvelope(msg.Data)
	if err != nil {
		// A malformed or wrong-version envelope never succeeds.
		b.logger.Error().Err(err).Str("topic", topic).Msg("dropping undecodable job")
		_ = msg.Term()
		b.history.Record(JobRecord{
			Topic: topic, Outcome: OutcomeFailed, Attempts: attempt,
			Error: err.Error(), FinishedAt: time.Now().UTC(),
		})
		return
	}
	enqueuedAt = env.EnqueuedAt

	job := &Job{Envelope: env, Attempt: attempt}
	err = handler(ctx, job)
	if err == nil {
		_ = msg.Ack()
		b.history.Record(JobRecord{
			Topic: topic, Outcome: OutcomeCompleted, Attempts: attempt,
			EnqueuedAt: enqueuedAt, FinishedAt: time.Now().UTC(),
		})
		return
	}

	if job.Final() || !domain.Retryable(err) {
		b.logger.Error().Err(err).
			Str("topic", topic).Int("attempt", attempt).
			Msg("job failed permanently")
		_ = msg.Term()
		b.history.Record(JobRecord{
			Topic: topic, Outcome: OutcomeFailed, Attempts: attempt,
			Error: err.Error(), EnqueuedAt: enqueuedAt, FinishedAt: time.Now().UTC(),
		})
		return
	}

	delay := BackoffFor(attempt)
	b.logger.Warn().Err(err).
		Str("topic", topic).Int("attempt", attempt).Dur("backoff", delay).
		Msg("job attempt failed, scheduling retry")
	_ = msg.NakWithDelay(delay)
}

func streamName(topic string) string {
	return strings.ToUpper(strings.ReplaceAll(topic, "-", "_"))
}

func subjectFor(topic string) string {
	return fmt.Sprintf("jobs.%s", topic)
}
