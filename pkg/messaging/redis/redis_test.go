package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakany/clinic-api/pkg/circuitbreaker"
)

func TestChannelPrefix(t *testing.T) {
	assert.Equal(t, "clinic:appointment.created", (&RedisBroker{prefix: "clinic"}).channel("appointment.created"))
	assert.Equal(t, "appointment.created", (&RedisBroker{}).channel("appointment.created"))
}

func TestNewRedisBrokerRejectsBadURL(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), Config{URL: "not a url"})
	assert.Error(t, err)
}

func TestPublishTripsBreaker(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	b := newBroker(client, "clinic")
	ctx := context.Background()
	payload := json.RawMessage(`{"type":"appointment.created"}`)

	for i := 0; i < 5; i++ {
		err := b.Publish(ctx, "appointment.created", payload)
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
	}

	err := b.Publish(ctx, "appointment.created", payload)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}
