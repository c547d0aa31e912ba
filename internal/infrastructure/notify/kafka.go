package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/ports"
)

// AlertEvent is the JSON value published for every alert.
type AlertEvent struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	PublishedAt    time.Time `json:"published_at"`
	Product        string    `json:"product"`
	Severity       string    `json:"severity"`
	Summary        string    `json:"summary"`
	Relevant       bool      `json:"relevant"`
	ActionRequired bool      `json:"action_required"`
	Score          int       `json:"score"`
}

// KafkaNotifier publishes alerts keyed by item id.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
}

var _ ports.Notifier = (*KafkaNotifier)(nil)

// NewKafkaNotifier wraps an existing producer.
func NewKafkaNotifier(producer sarama.SyncProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

// OpenKafka dials brokers with a producer that waits for all in-sync replicas.
func OpenKafka(brokers []string, topic string) (*KafkaNotifier, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "advisoryscanner"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaNotifier(producer, topic), nil
}

// Notify publishes every alert as one message.
func (n *KafkaNotifier) Notify(_ context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(alerts))
	for _, alert := range alerts {
		payload, err := json.Marshal(NewAlertEvent(alert))
		if err != nil {
			return fmt.Errorf("encode alert %s: %w", alert.Item.ID, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: n.topic,
			Key:   sarama.StringEncoder(alert.Item.ID),
			Value: sarama.ByteEncoder(payload),
		})
	}

	if err := n.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("publish %d alerts: %w", len(msgs), err)
	}
	return nil
}

// Close shuts down the producer.
func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}

// NewAlertEvent flattens alert into its wire form.
func NewAlertEvent(alert domain.Alert) AlertEvent {
	return AlertEvent{
		ID:             alert.Item.ID,
		Source:         alert.Item.Source,
		Title:          alert.Item.Title,
		URL:            alert.Item.URL,
		PublishedAt:    alert.Item.PublishedAt,
		Product:        alert.Product,
		Severity:       alert.Severity.String(),
		Summary:        alert.Summary,
		Relevant:       alert.Relevant,
		ActionRequired: alert.ActionRequired,
		Score:          alert.Score,
	}
}
