package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/prodmatch/pkg/notify"
	"github.com/macropower/prodmatch/pkg/result"
)

type fakePublisher struct {
	err      error
	channel  string
	messages [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel

	if b, ok := message.([]byte); ok {
		f.messages = append(f.messages, b)
	}

	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}

	return cmd
}

func TestRedis_Notify(t *testing.T) {
	t.Parallel()

	summary := result.Summary{
		CycleID:     "c1",
		Matched:     1,
		Unmatched:   2,
		Paths:       result.NewPaths("output"),
		CompletedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	tcs := map[string]struct {
		pubErr  error
		wantErr bool
	}{
		"published": {},
		"publish fails": {
			pubErr:  errors.New("connection refused"),
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pub := &fakePublisher{err: tc.pubErr}
			n := notify.NewRedis(pub, "prodmatch:cycles")

			err := n.Notify(t.Context(), summary)
			assert.Equal(t, "prodmatch:cycles", pub.channel)

			if tc.wantErr {
				require.ErrorIs(t, err, notify.ErrPublish)
				require.ErrorIs(t, err, tc.pubErr)

				return
			}

			require.NoError(t, err)
			require.Len(t, pub.messages, 1)

			var got result.Summary
			require.NoError(t, json.Unmarshal(pub.messages[0], &got))
			assert.Equal(t, summary, got)
			assert.NoError(t, n.Close())
		})
	}
}

func TestConfig(t *testing.T) {
	t.Parallel()

	c := notify.NewConfig()
	assert.Equal(t, notify.DefaultChannel, c.Channel)
	assert.False(t, c.Enabled())
	require.NoError(t, c.Validate())

	c.Address = "localhost:6379"
	assert.True(t, c.Enabled())

	c.DB = -1
	require.ErrorContains(t, c.Validate(), "$.notify.db")
}

func TestDial(t *testing.T) {
	t.Parallel()

	c := notify.NewConfig()
	c.Address = "127.0.0.1:0"

	n := notify.Dial(c, "")
	require.NoError(t, n.Close())
}
