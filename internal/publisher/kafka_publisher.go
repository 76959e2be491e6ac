// Package publisher forwards purchase updates from the event bridge to a
// Kafka topic.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"
)

// Producer is the part of *kafka.Producer the publisher uses.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

type KafkaPublisher struct {
	producer Producer
	topic    string
	timeout  time.Duration
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, timeout: 5 * time.Second}
}

// HandleMessage publishes one update keyed by product id and waits for the
// delivery report.
func (p *KafkaPublisher) HandleMessage(ctx context.Context, message []byte) error {
	var head struct {
		ProductID string `json:"productId"`
	}
	if err := json.Unmarshal(message, &head); err != nil {
		return fmt.Errorf("decode purchase update: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	delivery := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(head.ProductID),
		Value:          message,
	}
	if err := p.producer.Produce(msg, delivery); err != nil {
		return fmt.Errorf("failed to produce purchase update: %w", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting for delivery report: %w", ctx.Err())
	case ev := <-delivery:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %v", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("purchase update not delivered: %w", m.TopicPartition.Error)
		}
		log.WithFields(log.Fields{
			"topic":      p.topic,
			"product_id": head.ProductID,
			"partition":  m.TopicPartition.Partition,
			"offset":     m.TopicPartition.Offset,
		}).Debug("Purchase update published")
		return nil
	}
}
