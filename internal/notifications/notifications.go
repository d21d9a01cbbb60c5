package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

const queueSize = 32

// Ntfy publishes trigger events to an ntfy server. Events are queued by Notify and delivered by Run
// so a slow or unreachable server never stalls the control loop.
type Ntfy struct {
	client  *http.Client
	server  string
	topic   string
	pending chan model.Event
}

type message struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

func New(server, topic string) *Ntfy {
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
	} else {
		log.Info().Str("server", server).Str("topic", topic).Msg("Ntfy notifications initialized")
	}
	return &Ntfy{
		client:  &http.Client{Timeout: 10 * time.Second},
		server:  strings.TrimSuffix(server, "/"),
		topic:   topic,
		pending: make(chan model.Event, queueSize),
	}
}

func (n *Ntfy) Enabled() bool {
	return n.topic != ""
}

// Notify queues an event for delivery, dropping it if the queue is full.
func (n *Ntfy) Notify(ev model.Event) {
	if !n.Enabled() {
		return
	}
	select {
	case n.pending <- ev:
	default:
		log.Warn().Str("trigger", string(ev.Trigger)).Msg("Notification queue full, dropping event")
	}
}

func (n *Ntfy) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.pending:
			if err := n.Send(ctx, title(ev), ev.Message, priority(ev.Severity), tags(ev)...); err != nil {
				log.Error().Err(err).Str("trigger", string(ev.Trigger)).Msg("Failed to send notification")
			}
		}
	}
}

// Send posts one message to the configured topic.
func (n *Ntfy) Send(ctx context.Context, title, body string, prio int, tags ...string) error {
	if !n.Enabled() {
		return fmt.Errorf("notifications not initialized")
	}

	jsonData, err := json.Marshal(message{Topic: n.topic, Title: title, Message: body, Priority: prio, Tags: tags})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.server+"/", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")
	return nil
}

func title(ev model.Event) string {
	name := strings.ReplaceAll(string(ev.Trigger), "_", " ")
	if ev.Armed {
		return "Fermenter: " + name
	}
	return "Fermenter: " + name + " cleared"
}

func priority(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return 5
	case model.SeverityWarning:
		return 4
	default:
		return 3
	}
}

func tags(ev model.Event) []string {
	if !ev.Armed {
		return []string{"white_check_mark"}
	}
	switch ev.Severity {
	case model.SeverityCritical:
		return []string{"rotating_light"}
	case model.SeverityWarning:
		return []string{"warning"}
	default:
		return []string{"beer"}
	}
}
