package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"event-trivia-service/internal/app"
	"event-trivia-service/internal/domain"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func finishedEvent() app.Event {
	rank := 2
	return app.Event{
		ID:         "ev-1",
		Type:       app.EventPlayerFinished,
		GameID:     "g1",
		PlayerID:   "p1",
		Entry:      domain.LeaderboardEntry{GameID: "g1", PlayerID: "p1", Score: 450, Rank: &rank},
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisherRoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, "trivia.events", nil)

	require.NoError(t, p.PublishCompletion(context.Background(), finishedEvent()))

	assert.Equal(t, "trivia.events", ch.exchange)
	assert.Equal(t, "player.finished", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, "ev-1", ch.msg.MessageId)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var decoded app.Event
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, 450, decoded.Entry.Score)
	require.NotNil(t, decoded.Entry.Rank)
	assert.Equal(t, 2, *decoded.Entry.Rank)
}

func TestPublisherWrapsChannelErrors(t *testing.T) {
	boom := errors.New("channel closed")
	p := newPublisher(&fakeChannel{err: boom}, "trivia.events", nil)

	err := p.PublishCompletion(context.Background(), finishedEvent())
	require.ErrorIs(t, err, boom)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.PublishCompletion(context.Background(), finishedEvent()))

	entries := logs.FilterMessage("player completed game").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "p1", fields["player_id"])
	assert.EqualValues(t, 2, fields["rank"])
}
