package events

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
	"github.com/fyrsmithlabs/proposald/internal/workers"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func connect(t *testing.T, s *natsserver.Server) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func receive(t *testing.T, ch <-chan *nats.Msg) *nats.Msg {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublisher_Subjects(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)
	ch := make(chan *nats.Msg, 8)
	sub, err := nc.ChanSubscribe("tenders.s1.>", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	p := NewPublisher(connect(t, server), "tenders", nil)
	ctx := context.Background()

	require.NoError(t, p.EmitTransition(ctx, orchestrator.Transition{
		SessionID: "s1", From: orchestrator.StateInit, To: orchestrator.StateAnalyzing, Timestamp: time.Now(),
	}))
	m := receive(t, ch)
	assert.Equal(t, "tenders.s1.transition", m.Subject)

	require.NoError(t, p.PublishProgress(ctx, orchestrator.ProgressEvent{
		SessionID: "s1", Worker: "analysis", Kind: orchestrator.ProgressUpdate, Percent: 40,
	}))
	m = receive(t, ch)
	assert.Equal(t, "tenders.s1.progress", m.Subject)
	assert.Contains(t, string(m.Data), `"percent":40`)

	require.NoError(t, p.Finalize(ctx, orchestrator.Status{Session: orchestrator.Session{
		ID:     "s1",
		Result: &orchestrator.TerminalResult{Outcome: orchestrator.OutcomeFailed, FailedPhase: "strategy", Reason: "boom"},
	}}))
	m = receive(t, ch)
	assert.Equal(t, "tenders.s1.failed", m.Subject)
}

func TestPublisher_FinalizeFlushes(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)
	ch := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe("proposals.s2.>", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	p := NewPublisher(connect(t, server), "", nil)
	st := orchestrator.Status{Session: orchestrator.Session{
		ID:     "s2",
		Result: &orchestrator.TerminalResult{Outcome: orchestrator.OutcomeCompleted, ArtifactID: "a1"},
	}}

	require.NoError(t, p.Finalize(context.Background(), st))
	assert.Equal(t, "proposals.s2.completed", receive(t, ch).Subject)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Finalize(ctx, st))
	assert.Equal(t, "proposals.s2.completed", receive(t, ch).Subject)
}

func TestPublisher_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	server := startTestNATSServer(t)
	nc := connect(t, server)
	ch := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe("proposals.s3.>", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	p := NewPublisher(connect(t, server), "", nil)
	require.NoError(t, p.PublishProgress(ctx, orchestrator.ProgressEvent{SessionID: "s3", Worker: "analysis"}))
	m := receive(t, ch)
	assert.Equal(t, "00-0102030405060708090a0b0c0d0e0f10-0102030405060708-01", m.Header.Get("Traceparent"))

	require.NoError(t, p.PublishProgress(context.Background(), orchestrator.ProgressEvent{SessionID: "s3", Worker: "analysis"}))
	assert.Empty(t, receive(t, ch).Header.Get("Traceparent"))
}

func TestPublisher_FinalizeWithoutResult(t *testing.T) {
	server := startTestNATSServer(t)
	p := NewPublisher(connect(t, server), "", nil)
	assert.Error(t, p.Finalize(context.Background(), orchestrator.Status{Session: orchestrator.Session{ID: "s1"}}))
	assert.Equal(t, "proposals.s1.completed", p.Subject("s1", TypeCompleted))
}

func TestSubscribeSession_FollowsOrchestrator(t *testing.T) {
	server := startTestNATSServer(t)
	pub, err := Connect(server.ClientURL(), "proposals", nil)
	require.NoError(t, err)
	defer pub.Close()

	events := make(chan Event, 64)
	subConn := connect(t, server)
	sub, err := SubscribeSession(subConn, "proposals", "", func(ev Event) { events <- ev })
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, subConn.Flush())

	o := orchestrator.New(knowledge.NewStore(knowledge.NewMemoryRepository()), orchestrator.DefaultConfig(),
		orchestrator.WithTraceEmitter(pub),
		orchestrator.WithProgressSink(pub),
	)
	require.NoError(t, workers.Register(o, workers.Options{}))

	sess, err := o.Start(context.Background(), orchestrator.StartInput{Content: "We need a portal."})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, sess.ID, ev.SessionID)
		assert.Equal(t, TypeTransition, ev.Type)
		require.NotNil(t, ev.Transition)
		assert.Equal(t, orchestrator.StateAnalyzing, ev.Transition.To)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
	require.NoError(t, o.Close(context.Background()))
}
