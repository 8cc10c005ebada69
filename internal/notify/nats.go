package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
)

// streamName is the JetStream stream holding mirrored notifications.
const streamName = "FABOT_NOTIFICATIONS"

// Publisher is the subset of jetstream.JetStream used for delivery.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Message is the JSON document published for every dispatch.
type Message struct {
	To     ChannelRef `json:"to"`
	Embed  Embed      `json:"embed"`
	SentAt time.Time  `json:"sent_at"`
}

// NATS mirrors embeds to JetStream so other services can follow the auction.
// Messages are published to "<subject>.<channel kind>".
type NATS struct {
	js      Publisher
	subject string
	clock   clock.Clock
}

// NewNATS returns a NATS notifier publishing through js.
func NewNATS(js Publisher, subject string, clk clock.Clock) *NATS {
	return &NATS{js: js, subject: subject, clock: clk}
}

func (n *NATS) Dispatch(ctx context.Context, to ChannelRef, e Embed) error {
	data, err := json.Marshal(Message{To: to, Embed: e, SentAt: n.clock.Now()})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	subject := n.subject + "." + string(to.Kind)
	if _, err := n.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// ConnectNATS dials url and ensures the notification stream exists for
// subject. The returned connection must be closed by the caller.
func ConnectNATS(ctx context.Context, url, subject string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("fabot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subject + ".>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("creating stream %s: %w", streamName, err)
	}
	return nc, js, nil
}
