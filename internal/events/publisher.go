package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/logging"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "proposals"

// flushTimeout bounds the terminal flush when the caller sets no deadline.
const flushTimeout = 5 * time.Second

// Type names the kind of an Event.
type Type string

const (
	TypeTransition Type = "transition"
	TypeProgress   Type = "progress"
	TypeCompleted  Type = "completed"
	TypeFailed     Type = "failed"
)

// Event is the envelope of every published message.
type Event struct {
	Type       Type                         `json:"type"`
	SessionID  string                       `json:"session_id"`
	Timestamp  time.Time                    `json:"timestamp"`
	Transition *orchestrator.Transition     `json:"transition,omitempty"`
	Progress   *orchestrator.ProgressEvent  `json:"progress,omitempty"`
	Result     *orchestrator.TerminalResult `json:"result,omitempty"`
}

// Publisher pushes transitions, progress and terminal results to NATS.
// It implements orchestrator.TraceEmitter, orchestrator.ProgressSink and
// orchestrator.Finalizer.
type Publisher struct {
	nc     *nats.Conn
	owned  bool
	prefix string
	logger *logging.Logger
	now    func() time.Time
}

// Connect dials url and returns a publisher owning the connection.
func Connect(url, prefix string, logger *logging.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("proposald"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(context.Background(), "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	p := NewPublisher(nc, prefix, logger)
	p.owned = true
	return p, nil
}

// NewPublisher wraps an existing connection. The caller keeps ownership.
func NewPublisher(nc *nats.Conn, prefix string, logger *logging.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger, now: time.Now}
}

// Subject returns the subject for an event type of a session.
func (p *Publisher) Subject(sessionID string, t Type) string {
	return SessionSubject(p.prefix, sessionID, t)
}

// SessionSubject builds "{prefix}.{session}.{type}".
func SessionSubject(prefix, sessionID string, t Type) string {
	return fmt.Sprintf("%s.%s.%s", prefix, sessionID, t)
}

// EmitTransition implements orchestrator.TraceEmitter.
func (p *Publisher) EmitTransition(ctx context.Context, t orchestrator.Transition) error {
	return p.publish(ctx, Event{Type: TypeTransition, SessionID: t.SessionID, Timestamp: t.Timestamp, Transition: &t})
}

// PublishProgress implements orchestrator.ProgressSink.
func (p *Publisher) PublishProgress(ctx context.Context, ev orchestrator.ProgressEvent) error {
	return p.publish(ctx, Event{Type: TypeProgress, SessionID: ev.SessionID, Timestamp: ev.Timestamp, Progress: &ev})
}

// Finalize implements orchestrator.Finalizer.
func (p *Publisher) Finalize(ctx context.Context, st orchestrator.Status) error {
	res := st.Session.Result
	if res == nil {
		return errors.New("session has no terminal result")
	}
	t := TypeCompleted
	if res.Outcome == orchestrator.OutcomeFailed {
		t = TypeFailed
	}
	if err := p.publish(ctx, Event{Type: t, SessionID: st.Session.ID, Timestamp: res.FinishedAt, Result: res}); err != nil {
		return err
	}
	return p.flush(ctx)
}

// flush waits for the server to acknowledge everything published so far.
// nats.go refuses contexts without a deadline, so one is supplied.
func (p *Publisher) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// publish sends ev with the trace context of ctx in the message headers.
func (p *Publisher) publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	msg := &nats.Msg{Subject: p.Subject(ev.SessionID, ev.Type), Data: data, Header: nats.Header{}}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Close drains the connection if the publisher owns it.
func (p *Publisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.nc.Drain()
}

// SubscribeSession delivers the events of one session to fn. An empty
// sessionID follows every session.
func SubscribeSession(nc *nats.Conn, prefix, sessionID string, fn func(Event)) (*nats.Subscription, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	subject := prefix + ".>"
	if sessionID != "" {
		subject = prefix + "." + sessionID + ".>"
	}
	return nc.Subscribe(subject, func(m *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			return
		}
		fn(ev)
	})
}
