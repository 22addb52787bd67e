package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	dm "github.com/andrej220/ansirun/pkg/shared-models"
)

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// KafkaSink publishes records as JSON messages keyed by execution UID.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (s *KafkaSink) Store(ctx context.Context, rec dm.Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   rec.ExecutionUID[:],
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish record %s: %w", rec.ExecutionUID, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
