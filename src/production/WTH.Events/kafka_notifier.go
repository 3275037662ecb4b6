// Package events publishes accepted readings to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	config "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Config"
	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
)

// MessageWriter is the subset of *kafka.Writer used here
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReadingEvent is the payload published for every stored reading
type ReadingEvent struct {
	Type    string            `json:"type"`
	Reading wthmodels.Reading `json:"reading"`
}

const readingStoredType = "reading.stored"

// KafkaNotifier publishes reading events keyed by sensor id so that
// readings of one sensor stay ordered within a partition.
type KafkaNotifier struct {
	w       MessageWriter
	timeout time.Duration
}

// NewKafkaNotifier builds a synchronous writer for cfg
func NewKafkaNotifier(cfg config.KafkaConfig) *KafkaNotifier {
	return NewKafkaNotifierWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	})
}

func NewKafkaNotifierWithWriter(w MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{w: w, timeout: 5 * time.Second}
}

// ReadingAccepted publishes rd
func (n *KafkaNotifier) ReadingAccepted(ctx context.Context, rd wthmodels.Reading) error {
	payload, err := json.Marshal(ReadingEvent{Type: readingStoredType, Reading: rd})
	if err != nil {
		return fmt.Errorf("could not encode reading event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err = n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rd.Sensor),
		Value: payload,
		Time:  rd.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(readingStoredType)},
		},
	})
	if err != nil {
		return fmt.Errorf("could not publish reading %s: %w", rd.ID, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.w.Close()
}
