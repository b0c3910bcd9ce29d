// Команда dlq-replay возвращает события заказов, которые outbox-воркер отправил в DLQ,
// обратно в топик событий. По умолчанию работает в режиме dry-run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second

	envKafkaBrokers    = "BOOKSTORE_KAFKA_BROKERS"
	clientID           = "bookstore-dlq-replay"
	headerReplayedFrom = "x-replayed-from"
)

var errMissingBrokers = errors.New("kafka brokers are required (-brokers or " + envKafkaBrokers + ")")

type options struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	orderID     string
	eventType   string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// deadLetter — тело DLQ-события, которое пишет outbox-воркер после исчерпания попыток.
type deadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// sender реализуется kafka.Producer.
type sender interface {
	Send(ctx context.Context, msg kafka.Message) error
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

var newReplayDependencies = func(opts options) (offsetClient, partitionConsumerSource, sender, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = clientID
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}

	if !opts.execute {
		return client, consumer, nil, nil
	}

	producer, err := kafka.NewProducer(opts.brokers, clientID)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, err
	}
	return client, consumer, producer, nil
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	var (
		opts       options
		brokersRaw string
	)

	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: "+envKafkaBrokers+")")
	fs.StringVar(&opts.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&opts.targetTopic, "target-topic", kafka.TopicOrderEvents, "target topic for replay")
	fs.StringVar(&opts.orderID, "order-id", "", "replay only events of this order id")
	fs.StringVar(&opts.eventType, "event-type", "", "replay only events of this type, e.g. OrderCheckedOut")
	fs.IntVar(&opts.limit, "limit", defaultReplayLimit, "max number of messages to scan")
	fs.BoolVar(&opts.execute, "execute", false, "publish replayed events; default is dry-run")
	fs.BoolVar(&opts.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&opts.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" && getenv != nil {
		brokersRaw = getenv(envKafkaBrokers)
	}
	opts.brokers = parseBrokers(brokersRaw)
	opts.sourceTopic = strings.TrimSpace(opts.sourceTopic)
	opts.targetTopic = strings.TrimSpace(opts.targetTopic)
	opts.orderID = strings.TrimSpace(opts.orderID)
	opts.eventType = strings.TrimSpace(opts.eventType)

	switch {
	case len(opts.brokers) == 0:
		return options{}, errMissingBrokers
	case opts.sourceTopic == "":
		return options{}, errors.New("source-topic is required")
	case opts.targetTopic == "":
		return options{}, errors.New("target-topic is required")
	case opts.sourceTopic == opts.targetTopic:
		return options{}, errors.New("source-topic and target-topic must differ")
	case opts.limit <= 0:
		return options{}, errors.New("limit must be > 0")
	case opts.idleTimeout <= 0:
		return options{}, errors.New("idle-timeout must be > 0")
	}
	return opts, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// summary — итог прохода по DLQ.
type summary struct {
	processed int
	replayed  int
	skipped   int
	filtered  int
}

func (s *summary) add(other summary) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
	s.filtered += other.filtered
}

type replayer struct {
	opts     options
	client   offsetClient
	consumer partitionConsumerSource
	sender   sender
	logger   *log.Entry
	now      func() time.Time
}

func run(ctx context.Context, opts options, out io.Writer) error {
	client, consumer, producer, err := newReplayDependencies(opts)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if consumer != nil {
			_ = consumer.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	r := &replayer{
		opts:     opts,
		client:   client,
		consumer: consumer,
		sender:   producer,
		logger:   log.WithField("component", "dlq-replay"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	result, err := r.replay(ctx)
	if err != nil {
		return err
	}
	printSummary(out, result, opts)
	return nil
}

func (r *replayer) replay(ctx context.Context) (summary, error) {
	var result summary
	if r.client == nil || r.consumer == nil {
		return result, errors.New("kafka client and consumer are required")
	}
	if r.opts.execute && r.sender == nil {
		return result, errors.New("producer is required in execute mode")
	}

	partitions, err := r.client.Partitions(r.opts.sourceTopic)
	if err != nil {
		return result, fmt.Errorf("get partitions for topic %s: %w", r.opts.sourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.opts.sourceTopic).Warn("source topic has no partitions")
		return result, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if result.processed >= r.opts.limit {
			break
		}
		stats, err := r.replayPartition(ctx, partition, r.opts.limit-result.processed)
		result.add(stats)
		if err != nil {
			return result, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":   r.opts.execute,
		"processed": result.processed,
		"replayed":  result.replayed,
		"skipped":   result.skipped,
		"filtered":  result.filtered,
	}).Info("dlq replay finished")
	return result, nil
}

func (r *replayer) replayPartition(ctx context.Context, partition int32, limit int) (summary, error) {
	var stats summary
	topic := r.opts.sourceTopic

	oldest, err := r.client.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.opts.fromNewest && newest-int64(limit) > oldest {
		start = newest - int64(limit)
	}

	pc, err := r.consumer.ConsumePartition(topic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.opts.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumerErr := <-pc.Errors():
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.opts.idleTimeout)

			stats.processed++
			if err := r.handle(ctx, msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) handle(ctx context.Context, msg *sarama.ConsumerMessage, stats *summary) error {
	fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}

	envelope, ok, err := decodeDeadLetter(msg.Value, r.now())
	if err != nil {
		stats.skipped++
		r.logger.WithError(err).WithFields(fields).Warn("skip malformed dlq message")
		return nil
	}
	if !ok {
		stats.skipped++
		return nil
	}
	if !r.matches(envelope) {
		stats.filtered++
		return nil
	}

	out, err := replayMessage(envelope, r.opts.targetTopic, r.opts.sourceTopic)
	if err != nil {
		return err
	}

	fields["order_id"] = envelope.AggregateID
	fields["event_type"] = envelope.EventType
	if !r.opts.execute {
		r.logger.WithFields(fields).Info("dlq replay candidate")
		stats.replayed++
		return nil
	}
	if err := r.sender.Send(ctx, out); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	r.logger.WithFields(fields).Debug("dlq message replayed")
	stats.replayed++
	return nil
}

func (r *replayer) matches(envelope kafka.Envelope) bool {
	if r.opts.orderID != "" && envelope.AggregateID != r.opts.orderID {
		return false
	}
	if r.opts.eventType != "" && envelope.EventType != r.opts.eventType {
		return false
	}
	return true
}

// decodeDeadLetter восстанавливает исходный конверт события из DLQ-сообщения.
// ok=false означает, что сообщение не похоже на DLQ-событие outbox.
func decodeDeadLetter(value []byte, now time.Time) (kafka.Envelope, bool, error) {
	var outer kafka.Envelope
	if err := json.Unmarshal(value, &outer); err != nil || len(outer.Payload) == 0 {
		return kafka.Envelope{}, false, nil
	}

	var letter deadLetter
	if err := json.Unmarshal(outer.Payload, &letter); err != nil {
		return kafka.Envelope{}, false, fmt.Errorf("decode dlq payload: %w", err)
	}
	if len(letter.Payload) == 0 || !json.Valid(letter.Payload) {
		return kafka.Envelope{}, false, errors.New("dlq payload does not contain original event payload")
	}

	return kafka.Envelope{
		ID:            firstNonEmpty(letter.OutboxID, outer.ID),
		AggregateType: firstNonEmpty(letter.AggregateType, outer.AggregateType),
		AggregateID:   firstNonEmpty(letter.AggregateID, outer.AggregateID),
		EventType:     firstNonEmpty(letter.EventType, outer.EventType),
		Payload:       letter.Payload,
		OccurredAt:    outer.OccurredAt,
		PublishedAt:   now,
	}, true, nil
}

func replayMessage(envelope kafka.Envelope, targetTopic, sourceTopic string) (kafka.Message, error) {
	value, err := json.Marshal(envelope)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := envelope.AggregateID
	if key == "" {
		key = envelope.ID
	}
	return kafka.Message{
		Topic: targetTopic,
		Key:   key,
		Value: value,
		Headers: map[string]string{
			kafka.HeaderEventType:     envelope.EventType,
			kafka.HeaderAggregateType: envelope.AggregateType,
			kafka.HeaderOutboxID:      envelope.ID,
			headerReplayedFrom:        sourceTopic,
		},
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func printSummary(out io.Writer, result summary, opts options) {
	mode := "dry-run"
	if opts.execute {
		mode = "execute"
	}
	_, _ = fmt.Fprintf(out, "dlq replay %s: %s -> %s processed=%d replayed=%d skipped=%d filtered=%d\n",
		mode, opts.sourceTopic, opts.targetTopic,
		result.processed, result.replayed, result.skipped, result.filtered)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
