// Package events pushes daemon lifecycle markers and finished transcripts to
// an MQTT broker. Publishing is best-effort: a broker outage is logged and
// never fails a transcription.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Config mirrors the daemon's MQTT settings.
type Config struct {
	Enabled     bool
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// TranscriptEvent is the payload published for each finished transcript.
type TranscriptEvent struct {
	Session    string    `json:"session,omitempty"`
	Source     string    `json:"source"`
	Model      string    `json:"model,omitempty"`
	Segments   int       `json:"segments"`
	DurationMS int64     `json:"duration_ms"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Publisher owns the MQTT client. A disabled publisher is a valid no-op.
type Publisher struct {
	cfg    Config
	log    *slog.Logger
	client paho.Client
}

// NewPublisher builds a publisher; the connection is made in Start.
func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg: cfg,
		log: logger.With("component", "events.Publisher"),
	}
}

// Start connects to the broker and announces the daemon as online. When the
// context ends the publisher announces offline and disconnects. Start is a
// no-op when publishing is disabled.
func (p *Publisher) Start(ctx context.Context) error {
	if !p.cfg.Enabled {
		p.log.Debug("event publishing disabled")
		return nil
	}

	opts := paho.NewClientOptions().
		AddBroker(p.cfg.BrokerURL).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.log.Error("mqtt connection lost", "error", err)
	})

	p.client = paho.NewClient(opts)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	p.log.Info("event publisher connected", "broker", p.cfg.BrokerURL)
	p.publishStatus("online")

	go func() {
		<-ctx.Done()
		p.publishStatus("offline")
		p.client.Disconnect(100)
	}()

	return nil
}

// PublishTranscript pushes one finished transcript. Failures are logged;
// nothing is reported back to the transcription path.
func (p *Publisher) PublishTranscript(evt TranscriptEvent) {
	if p == nil || p.client == nil {
		return
	}

	body, err := json.Marshal(evt)
	if err != nil {
		p.log.Warn("encode transcript event", "error", err)
		return
	}

	topic := TopicTranscript(p.cfg.TopicPrefix, evt.Source)
	token := p.client.Publish(topic, 0, false, body)
	go func() {
		if token.Wait() && token.Error() != nil {
			p.log.Warn("transcript event publish failed", "topic", topic, "error", token.Error())
		}
	}()
}

func (p *Publisher) publishStatus(status string) {
	if token := p.client.Publish(TopicStatus(p.cfg.TopicPrefix), 1, true, status); token.Wait() && token.Error() != nil {
		p.log.Warn("status publish failed", "status", status, "error", token.Error())
	}
}
