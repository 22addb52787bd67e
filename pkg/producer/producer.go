// Package producer queues execution requests on a Kafka topic for the consumer side.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/andrej220/ansirun/pkg/lg"
	dm "github.com/andrej220/ansirun/pkg/shared-models"
)

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	topic  string
	lg     lg.Logger
}

func New(brokers []string, topic string, logger lg.Logger) *Producer {
	if logger == nil {
		logger = lg.Discard
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			Async:                  false,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
		lg:    logger,
	}
}

// Submit assigns an execution UID when missing and publishes req keyed by it.
// It returns the request as queued.
func (p *Producer) Submit(ctx context.Context, req dm.Request) (dm.Request, error) {
	if req.ExecutionUID == uuid.Nil {
		req.ExecutionUID = uuid.New()
	}
	message, err := json.Marshal(req)
	if err != nil {
		return req, fmt.Errorf("marshal request: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   req.ExecutionUID[:],
		Value: message,
		Time:  time.Now(),
	})
	if err != nil {
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			p.lg.Error("Kafka topic does not exist",
				lg.String("topic", p.topic),
				lg.String("action", "Create the topic manually or enable auto-creation"))
		}
		return req, fmt.Errorf("queue request %s: %w", req.ExecutionUID, err)
	}
	p.lg.Debug("Request queued", lg.String("exuid", req.ExecutionUID.String()), lg.String("host", req.Host))
	return req, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
