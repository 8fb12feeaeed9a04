package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Provider delivers one rendered message to one recipient.
type Provider interface {
	Name() string
	Send(ctx context.Context, message, recipient string) error
}

type ProviderOptions struct {
	WebhookURL   string
	WebhookToken string
	KafkaBrokers []string
	KafkaTopic   string
}

// NewProvider picks a provider by kind. Misconfigured webhook and kafka
// providers fall back to logging.
func NewProvider(kind string, options ProviderOptions, log *zap.Logger) Provider {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "stub", "log":
		return logProvider{log: log}
	case "noop":
		return noopProvider{}
	case "fail":
		return failProvider{}
	case "webhook":
		if options.WebhookURL == "" {
			log.Warn("NOTIFY_WEBHOOK_URL not set, notifications are only logged")
			return logProvider{log: log}
		}
		return webhookProvider{url: options.WebhookURL, token: options.WebhookToken, client: &http.Client{Timeout: 5 * time.Second}}
	case "kafka":
		if len(options.KafkaBrokers) == 0 || options.KafkaTopic == "" {
			log.Warn("KAFKA_BROKERS or KAFKA_TOPIC not set, notifications are only logged")
			return logProvider{log: log}
		}
		return newKafkaProvider(&kafka.Writer{
			Addr:         kafka.TCP(options.KafkaBrokers...),
			Topic:        options.KafkaTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		})
	default:
		if strings.HasPrefix(kind, "http://") || strings.HasPrefix(kind, "https://") {
			return webhookProvider{url: kind, client: &http.Client{Timeout: 5 * time.Second}}
		}
		log.Warn("unknown notification provider, falling back to log", zap.String("provider", kind))
		return logProvider{log: log}
	}
}

type logProvider struct {
	log *zap.Logger
}

func (logProvider) Name() string { return "log" }

func (p logProvider) Send(ctx context.Context, message, recipient string) error {
	p.log.Info("notification", zap.String("recipient", recipient), zap.String("message", message))
	return nil
}

type noopProvider struct{}

func (noopProvider) Name() string { return "noop" }

func (noopProvider) Send(ctx context.Context, message, recipient string) error {
	return nil
}

type failProvider struct{}

func (failProvider) Name() string { return "fail" }

func (failProvider) Send(ctx context.Context, message, recipient string) error {
	return errors.New("provider failure")
}

type webhookProvider struct {
	url    string
	token  string
	client *http.Client
}

func (webhookProvider) Name() string { return "webhook" }

func (p webhookProvider) Send(ctx context.Context, message, recipient string) error {
	body, err := json.Marshal(map[string]string{
		"channel":   "sms",
		"recipient": recipient,
		"message":   message,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider rejected request: %s", resp.Status)
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaProvider publishes messages keyed by recipient so one customer's
// notifications stay ordered within a partition.
type kafkaProvider struct {
	writer messageWriter
	now    func() time.Time
}

func newKafkaProvider(writer messageWriter) *kafkaProvider {
	return &kafkaProvider{writer: writer, now: time.Now}
}

func (*kafkaProvider) Name() string { return "kafka" }

func (p *kafkaProvider) Send(ctx context.Context, message, recipient string) error {
	value, err := json.Marshal(map[string]string{
		"recipient": recipient,
		"message":   message,
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(recipient),
		Value: value,
		Time:  p.now().UTC(),
	})
}

func (p *kafkaProvider) Close() error {
	return p.writer.Close()
}
