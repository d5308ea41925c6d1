package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/internal/queue"
	"github.com/nimasrn/rental-gateway/pkg/redis"
	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReturn(t *testing.T) {
	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	qcfg := queue.QueueConfig{
		Name:          "test:cli_returns",
		ConsumerGroup: "rental-status",
		ConsumerName:  "cli-test",
		PollInterval:  20 * time.Millisecond,
	}
	ctx := context.Background()

	_, err = publishReturn(ctx, adapter, qcfg, model.ReturnRecorded{TransactionID: 42, ReturnEventID: "01JREPLAY", Notes: "missed while down"})
	require.NoError(t, err)
	_, err = publishReturn(ctx, adapter, qcfg, model.ReturnRecorded{TransactionID: 43})
	require.NoError(t, err)

	consumer, err := queue.NewQueue(adapter, qcfg)
	require.NoError(t, err)
	defer consumer.Stop(time.Second)

	received := make(chan *queue.Message, 2)
	require.NoError(t, consumer.Consume(func(ctx context.Context, msg *queue.Message) error {
		received <- msg
		return nil
	}))

	var got []model.ReturnRecorded
	for len(got) < 2 {
		select {
		case msg := <-received:
			assert.Equal(t, "cli", msg.Metadata["source"])
			var ev model.ReturnRecorded
			require.NoError(t, json.Unmarshal(msg.Data, &ev))
			got = append(got, ev)
		case <-time.After(3 * time.Second):
			t.Fatalf("received %d of 2 return events", len(got))
		}
	}

	assert.Equal(t, int64(42), got[0].TransactionID)
	assert.Equal(t, "01JREPLAY", got[0].ReturnEventID)
	assert.Equal(t, "missed while down", got[0].Notes)

	assert.Equal(t, int64(43), got[1].TransactionID)
	_, err = ulid.Parse(got[1].ReturnEventID)
	assert.NoError(t, err)
}
