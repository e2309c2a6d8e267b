package database

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/price-monitor/internal/events"
	"github.com/maltedev/price-monitor/internal/metrics"
)

// streamMock records XADD calls; a non-nil first return value fails the call.
type streamMock struct {
	mock.Mock
}

func (s *streamMock) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	ret := s.Called(ctx, a)
	cmd := redis.NewStringCmd(ctx)
	if err, _ := ret.Get(0).(error); err != nil {
		cmd.SetErr(err)
		return cmd
	}
	cmd.SetVal("1775153045000-0")
	return cmd
}

func (s *streamMock) Close() error {
	return s.Called().Error(0)
}

type outboxMock struct {
	mock.Mock
}

func (o *outboxMock) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	ret := o.Called(ctx, limit)
	evs, _ := ret.Get(0).([]*OutboxEvent)
	return evs, ret.Error(1)
}

func (o *outboxMock) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return o.Called(ctx, id).Error(0)
}

func (o *outboxMock) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	return o.Called(ctx, id, cause).Error(0)
}

type relayFixture struct {
	relay  *Relay
	stream *streamMock
	outbox *outboxMock
}

// newRelayFixture wires a relay to fresh mocks and verifies their
// expectations when the test ends.
func newRelayFixture(t *testing.T) relayFixture {
	t.Helper()
	f := relayFixture{stream: &streamMock{}, outbox: &outboxMock{}}
	f.relay = &Relay{
		redis:     f.stream,
		outbox:    f.outbox,
		metrics:   metrics.New(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		interval:  20 * time.Millisecond,
		batchSize: 10,
	}
	t.Cleanup(func() {
		f.stream.AssertExpectations(t)
		f.outbox.AssertExpectations(t)
	})
	return f
}

func scrapeEvent(urlID string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: events.AggregateTypeURL,
		AggregateID:   urlID,
		EventType:     string(events.EventTypeScrapeCompleted),
		Payload:       json.RawMessage(`{"url_id":"` + urlID + `","price":1499.9,"status":"success"}`),
		TargetStream:  events.DefaultStream,
		CreatedAt:     time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC),
	}
}

// envelopeOf decodes the data field of an XADD call.
func envelopeOf(a *redis.XAddArgs) (streamEnvelope, bool) {
	var env streamEnvelope
	raw, ok := a.Values.(map[string]any)["data"].(string)
	if !ok {
		return env, false
	}
	return env, json.Unmarshal([]byte(raw), &env) == nil
}

func TestRelayProcessEvents(t *testing.T) {
	ctx := context.Background()
	anyArgs := mock.AnythingOfType("*redis.XAddArgs")

	t.Run("published events are marked processed", func(t *testing.T) {
		f := newRelayFixture(t)
		batch := []*OutboxEvent{scrapeEvent("u1"), scrapeEvent("u2")}

		f.outbox.On("GetPending", ctx, 10).Return(batch, nil)
		f.stream.On("XAdd", ctx, anyArgs).Return(nil).Twice()
		for _, ev := range batch {
			f.outbox.On("MarkProcessed", ctx, ev.ID).Return(nil)
		}

		require.NoError(t, f.relay.processEvents(ctx))
	})

	t.Run("empty backlog publishes nothing", func(t *testing.T) {
		f := newRelayFixture(t)
		f.outbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		require.NoError(t, f.relay.processEvents(ctx))
		f.stream.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})

	t.Run("backlog query error is returned", func(t *testing.T) {
		f := newRelayFixture(t)
		f.outbox.On("GetPending", ctx, 10).Return(nil, errors.New("connection refused"))

		err := f.relay.processEvents(ctx)
		assert.ErrorContains(t, err, "failed to get pending events")
	})

	t.Run("publish error marks the event failed", func(t *testing.T) {
		f := newRelayFixture(t)
		ev := scrapeEvent("u1")

		f.outbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{ev}, nil)
		f.stream.On("XAdd", ctx, anyArgs).Return(errors.New("redis down"))
		f.outbox.On("MarkFailed", ctx, ev.ID, mock.Anything).Return(nil)

		require.NoError(t, f.relay.processEvents(ctx))
		f.outbox.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
	})

	t.Run("failures are isolated per event", func(t *testing.T) {
		f := newRelayFixture(t)
		bad, good := scrapeEvent("u1"), scrapeEvent("u2")
		forURL := func(id string) any {
			return mock.MatchedBy(func(a *redis.XAddArgs) bool { return a.Values.(map[string]any)["aggregate_id"] == id })
		}

		f.outbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{bad, good}, nil)
		f.stream.On("XAdd", ctx, forURL("u1")).Return(errors.New("redis error"))
		f.stream.On("XAdd", ctx, forURL("u2")).Return(nil)
		f.outbox.On("MarkFailed", ctx, bad.ID, mock.Anything).Return(nil)
		f.outbox.On("MarkProcessed", ctx, good.ID).Return(nil)

		require.NoError(t, f.relay.processEvents(ctx))
	})
}

func TestRelayPublishToRedis(t *testing.T) {
	ctx := context.Background()

	t.Run("envelope carries the event", func(t *testing.T) {
		f := newRelayFixture(t)
		ev := scrapeEvent("u1")

		f.stream.On("XAdd", ctx, mock.MatchedBy(func(a *redis.XAddArgs) bool {
			env, ok := envelopeOf(a)
			return ok &&
				a.Stream == events.DefaultStream &&
				env.Type == "SCRAPE_COMPLETED" &&
				env.AggregateType == "url" &&
				env.AggregateID == "u1" &&
				env.Timestamp == "2026-04-02T18:00:00Z"
		})).Return(nil)

		require.NoError(t, f.relay.publishToRedis(ctx, ev))
	})

	t.Run("metadata names the source and retry count", func(t *testing.T) {
		f := newRelayFixture(t)
		ev := scrapeEvent("u1")
		ev.RetryCount = 2

		f.stream.On("XAdd", ctx, mock.MatchedBy(func(a *redis.XAddArgs) bool {
			env, ok := envelopeOf(a)
			return ok && env.Metadata.Source == relaySource && env.Metadata.RetryCount == 2
		})).Return(nil)

		require.NoError(t, f.relay.publishToRedis(ctx, ev))
	})

	t.Run("malformed payload never reaches redis", func(t *testing.T) {
		f := newRelayFixture(t)
		ev := scrapeEvent("u1")
		ev.Payload = json.RawMessage(`{not json`)

		assert.Error(t, f.relay.publishToRedis(ctx, ev))
		f.stream.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})
}

func TestRelayStartStopsOnCancel(t *testing.T) {
	f := newRelayFixture(t)
	f.outbox.On("GetPending", mock.Anything, 10).Return([]*OutboxEvent{}, nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.relay.Start(ctx) }()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay kept running after cancel")
	}
}

func TestStreamValues(t *testing.T) {
	created := time.Date(2026, 4, 2, 15, 4, 5, 0, time.FixedZone("ART", -3*3600))
	ev := scrapeEvent("u9")
	ev.CreatedAt = created

	values, err := streamValues(ev)
	require.NoError(t, err)

	assert.Equal(t, "SCRAPE_COMPLETED", values["event_type"])
	assert.Equal(t, "u9", values["aggregate_id"])
	assert.Equal(t, ev.ID.String(), values["original_id"])
	assert.Equal(t, "1775153045000000000", values["timestamp"])

	var env streamEnvelope
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &env))
	assert.Equal(t, "2026-04-02T18:04:05Z", env.Timestamp)
	assert.Equal(t, relaySource, env.Metadata.Source)
	assert.JSONEq(t, string(ev.Payload), string(env.Payload))
}
