package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/segmentio/kafka-go"

	"github.com/mqy/wabiz/engine"
	"github.com/mqy/wabiz/notify"
)

const writeTimeout = 3 * time.Second

func write(ctx context.Context, kafkaWriter IKafkaWriter, km kafka.Message, limit int) error {
	if limit > 0 && len(km.Value) > limit {
		return fmt.Errorf("message exceeds max limit: %d bytes", limit)
	}
	ctx2, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := kafkaWriter.WriteMessages(ctx2, km); err != nil {
		return fmt.Errorf("error write to kafka: %w", err)
	}
	return nil
}

// EnvelopeWriter queues raw webhook bodies for the Consumer.
type EnvelopeWriter struct {
	kafkaWriter IKafkaWriter
	limit       int
}

func NewEnvelopeWriter(kafkaWriter IKafkaWriter, limit int) *EnvelopeWriter {
	return &EnvelopeWriter{kafkaWriter: kafkaWriter, limit: limit}
}

// Enqueue writes body keyed by its first chat id, so events of one chat stay
// on one partition and are consumed in delivery order.
func (w *EnvelopeWriter) Enqueue(ctx context.Context, body []byte) error {
	return write(ctx, w.kafkaWriter, kafka.Message{Key: envelopeKey(body), Value: body}, w.limit)
}

func envelopeKey(body []byte) []byte {
	env, err := notify.Decode(body)
	if err != nil {
		return nil
	}
	for _, n := range notify.Classify(env) {
		if n.From != "" {
			return []byte(n.From)
		}
	}
	return nil
}

// Publisher implements interface `engine.Broadcaster` on a kafka topic.
type Publisher struct {
	kafkaWriter IKafkaWriter
}

func NewPublisher(kafkaWriter IKafkaWriter) *Publisher {
	return &Publisher{kafkaWriter: kafkaWriter}
}

// Broadcast writes ev as JSON keyed by room id.
func (p *Publisher) Broadcast(ctx context.Context, ev *engine.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("error marshal event %s: %w", ev.Type, err)
	}
	km := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.RoomID(), 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := write(ctx, p.kafkaWriter, km, 0); err != nil {
		return err
	}
	glog.V(5).Infof("publisher: %s of room %d written", ev.Type, ev.RoomID())
	return nil
}
