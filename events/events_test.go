package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(ctx context.Context, evt Event) error { return f.err }

func TestMultiTriesEveryPublisher(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("broker down")
	m := Multi{failingPublisher{boom}, nil, rec, LogPublisher{}}

	err := m.Publish(context.Background(), Event{RunID: "r1", Kind: StageStarted, Stage: "research"})
	assert.ErrorIs(t, err, boom)
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "research", rec.Events()[0].Stage)
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestAMQPPublisherRoutesByRun(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{ch: ch, exchange: "pipeline.events"}

	require.NoError(t, p.Publish(context.Background(), Event{RunID: "ab12cd34", Kind: SceneFailed, SceneIndex: Scene(1)}))
	assert.Equal(t, "pipeline.events", ch.exchange)
	assert.Equal(t, "run.ab12cd34", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)

	var evt Event
	require.NoError(t, json.Unmarshal(ch.msg.Body, &evt))
	require.NotNil(t, evt.SceneIndex)
	assert.Equal(t, 1, *evt.SceneIndex)
}

func TestForwardRelaysAndSkipsMalformed(t *testing.T) {
	deliveries := make(chan amqp.Delivery, 3)
	good, _ := json.Marshal(Event{RunID: "r1", Kind: RunFinished, Status: "completed"})
	deliveries <- amqp.Delivery{Body: []byte("{not json")}
	deliveries <- amqp.Delivery{Body: good}
	close(deliveries)

	rec := &Recorder{}
	require.NoError(t, forward(context.Background(), deliveries, rec))
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "completed", rec.Events()[0].Status)
}

func TestForwardStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := forward(ctx, make(chan amqp.Delivery), &Recorder{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHubStreamsRunEvents(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID := strings.TrimPrefix(r.URL.Path, "/ws/")
		hub.ServeWS(w, r, runID, &Event{RunID: runID, Kind: StageStarted, Stage: "research"})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/r1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "research", first.Stage)

	require.Eventually(t, func() bool { return hub.Subscribers("r1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), Event{RunID: "other", Kind: StageStarted}))
	require.NoError(t, hub.Publish(context.Background(), Event{RunID: "r1", Kind: StageCompleted, Stage: "script"}))

	var next Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "r1", next.RunID)
	assert.Equal(t, "script", next.Stage)

	last, ok := hub.Last("r1")
	require.True(t, ok)
	assert.Equal(t, StageCompleted, last.Kind)
}
