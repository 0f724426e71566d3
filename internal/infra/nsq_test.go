package infra

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideshare/internal/modules/ride"
)

type fakeProducer struct {
	topic   string
	body    []byte
	err     error
	stopped bool
}

func (f *fakeProducer) Publish(topic string, body []byte) error {
	f.topic, f.body = topic, body
	return f.err
}

func (f *fakeProducer) Stop() { f.stopped = true }

func TestNSQPublisherPublishesJSON(t *testing.T) {
	fp := &fakeProducer{}
	p := &NSQPublisher{producer: fp, topic: "ride-events"}

	at := time.Date(2030, time.May, 1, 9, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), ride.Event{Type: ride.EventAccepted, RideID: "r1", ActorID: "u2", DriverID: "u1", RiderID: "u2", At: at})
	require.NoError(t, err)
	assert.Equal(t, "ride-events", fp.topic)

	var got map[string]any
	require.NoError(t, json.Unmarshal(fp.body, &got))
	assert.Equal(t, "ride.accepted", got["type"])
	assert.Equal(t, "r1", got["ride_id"])
	assert.Equal(t, "u2", got["rider_id"])

	p.Stop()
	assert.True(t, fp.stopped)
}

func TestNSQPublisherWrapsErrors(t *testing.T) {
	p := &NSQPublisher{producer: &fakeProducer{err: errors.New("connection refused")}, topic: "t"}
	err := p.Publish(context.Background(), ride.Event{Type: ride.EventPosted, RideID: "r1"})
	assert.ErrorContains(t, err, "connection refused")
	assert.ErrorContains(t, err, "ride.posted")
}
