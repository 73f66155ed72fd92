// README: Kafka writer for booking lifecycle events.
package infra

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter hashes on the message key so every event of one booking
// lands on the same partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}
