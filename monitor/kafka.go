package monitor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

const (
	KafkaBatchInterval  = 1 * time.Second
	KafkaRequestTimeout = 60 * time.Second
	KafkaBatchSize      = 100
	KafkaChannelSize    = 100
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer kafkaWriter
	topic  string
	events chan RaffleEvent
	raffle string
	quit   chan struct{}
	done   chan struct{}
}

// RaffleEvent is the envelope published for every raffle notification
type RaffleEvent struct {
	ID        *string `json:"id,omitempty"`
	Type      *string `json:"type"`
	Timestamp *string `json:"timestamp"`
	Raffle    *string `json:"raffle,omitempty"`
	Data      any     `json:"data"`
}

var kafkaProducer *KafkaProducer

func InitKafkaProducer(bootstrapServers, user, password, topic, raffleAddress string) error {
	producer, err := newKafkaProducer(bootstrapServers, user, password, topic, raffleAddress)
	if err != nil {
		return err
	}
	kafkaProducer = producer
	go producer.processEvents()
	return nil
}

// StopKafkaProducer flushes queued events and closes the writer
func StopKafkaProducer() {
	if kafkaProducer == nil {
		return
	}
	p := kafkaProducer
	kafkaProducer = nil
	close(p.quit)
	<-p.done
	if err := p.writer.Close(); err != nil {
		glog.Errorf("error while closing Kafka writer, err=%v", err)
	}
}

func newKafkaProducer(bootstrapServers, user, password, topic, raffleAddress string) (*KafkaProducer, error) {
	if bootstrapServers == "" || topic == "" {
		return nil, fmt.Errorf("kafka bootstrap servers and topic are required")
	}
	dialer := &kafka.Dialer{
		Timeout:   KafkaRequestTimeout,
		DualStack: true,
	}

	if user != "" && password != "" {
		tls := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		sasl := &plain.Mechanism{
			Username: user,
			Password: password,
		}
		dialer.SASLMechanism = sasl
		dialer.TLS = tls
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  []string{bootstrapServers},
		Topic:    topic,
		Balancer: kafka.CRC32Balancer{},
		Dialer:   dialer,
	})

	return &KafkaProducer{
		writer: writer,
		topic:  topic,
		events: make(chan RaffleEvent, KafkaChannelSize),
		raffle: raffleAddress,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

func (p *KafkaProducer) processEvents() {
	defer close(p.done)
	ticker := time.NewTicker(KafkaBatchInterval)
	defer ticker.Stop()

	var eventsBatch []kafka.Message

	for {
		select {
		case event := <-p.events:
			msg, err := toMessage(event)
			if err != nil {
				glog.Errorf("error while marshalling raffle event to Kafka, err=%v", err)
				continue
			}
			eventsBatch = append(eventsBatch, msg)

			// Send batch if it reaches the defined size
			if len(eventsBatch) >= KafkaBatchSize {
				p.sendBatch(eventsBatch)
				eventsBatch = nil
			}

		case <-ticker.C:
			if len(eventsBatch) > 0 {
				p.sendBatch(eventsBatch)
				eventsBatch = nil
			}

		case <-p.quit:
		drain:
			for {
				select {
				case event := <-p.events:
					if msg, err := toMessage(event); err == nil {
						eventsBatch = append(eventsBatch, msg)
					}
				default:
					break drain
				}
			}
			if len(eventsBatch) > 0 {
				p.sendBatch(eventsBatch)
			}
			return
		}
	}
}

func toMessage(event RaffleEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(*event.ID),
		Value: value,
	}, nil
}

func (p *KafkaProducer) sendBatch(eventsBatch []kafka.Message) {
	// We retry sending messages to Kafka in case of a failure
	kafkaWriteRetries := 3
	var writeErr error
	for i := 0; i < kafkaWriteRetries; i++ {
		writeErr = p.writer.WriteMessages(context.Background(), eventsBatch...)
		if writeErr == nil {
			return
		}
		glog.Warningf("error while sending raffle event batch to Kafka, retrying, topic=%s, try=%d, err=%v", p.topic, i, writeErr)
	}
	if writeErr != nil {
		glog.Errorf("error while sending raffle event batch to Kafka, the events are lost, err=%v", writeErr)
	}
}

// SendQueueEventAsync queues a raffle event for publishing. Events are dropped when no
// producer is configured or the queue is full.
func SendQueueEventAsync(eventType string, data any) {
	if kafkaProducer == nil {
		return
	}

	randomID := uuid.New().String()
	timestampMs := time.Now().UnixMilli()

	event := RaffleEvent{
		ID:        stringPtr(randomID),
		Raffle:    stringPtr(kafkaProducer.raffle),
		Type:      &eventType,
		Timestamp: stringPtr(fmt.Sprint(timestampMs)),
		Data:      data,
	}

	select {
	case kafkaProducer.events <- event:
	default:
		glog.Warningf("kafka producer event queue is full, dropping event %q", eventType)
	}
}

func stringPtr(s string) *string {
	return &s
}
