package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
)

const (
	DefaultStream  = "CALLS"
	DefaultSubject = "calls"
)

// NATS publishes to JetStream subjects "<prefix>.<type>", for example
// calls.call.ended.
type NATS struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
}

func NewNATS(url, stream, prefix string) (*NATS, error) {
	if stream == "" {
		stream = DefaultStream
	}
	if prefix == "" {
		prefix = DefaultSubject
	}
	nc, err := nats.Connect(url,
		nats.Name("callengine"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  []string{prefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	}); err != nil {
		slog.Warn("nats stream not ensured", "stream", stream, "error", err)
	}
	return &NATS{nc: nc, js: js, prefix: prefix}, nil
}

func (p *NATS) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonEventPublish, "marshal event")
	}
	subject := p.prefix + "." + string(ev.Type)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(ev.SessionID+":"+string(ev.Type))); err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonEventPublish, "publish %s", subject)
	}
	return nil
}

func (p *NATS) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
