package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"topic-video-pipeline/config"
	"topic-video-pipeline/events"
	"topic-video-pipeline/store"
	"topic-video-pipeline/types"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	runs []*types.PipelineRun
	err  error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, run *types.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, run)
	return nil
}

type testEnv struct {
	cfg        *config.Config
	store      *store.MemoryStore
	dispatcher *fakeDispatcher
	hub        *events.Hub
	handler    http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.Output = t.TempDir()
	env := &testEnv{
		cfg:        cfg,
		store:      store.NewMemoryStore(),
		dispatcher: &fakeDispatcher{},
		hub:        events.NewHub(),
	}
	env.handler = New(cfg, env.store, env.dispatcher, env.hub).Router()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) saveRun(t *testing.T, id string, mutate func(*types.PipelineRun)) *types.PipelineRun {
	t.Helper()
	run := types.NewRun(id, filepath.Join(e.cfg.Paths.Output, id), types.Query{Topic: "solar eclipses", Source: types.SourceNews})
	require.NoError(t, os.MkdirAll(run.Dir, 0755))
	if mutate != nil {
		mutate(run)
	}
	require.NoError(t, e.store.Save(context.Background(), run))
	return run
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestCreateRun(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/runs", `{"topic":"solar eclipses","source":"news","count":3,"scenes":2}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp createRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.RunID, 8)
	assert.Equal(t, "/ws/"+resp.RunID, resp.Events)
	assert.Equal(t, 2, resp.Query.Scenes)
	assert.Equal(t, env.cfg.Script.DefaultWordLimit, resp.Query.WordLimit)

	require.Len(t, env.dispatcher.runs, 1)
	assert.Equal(t, resp.RunID, env.dispatcher.runs[0].ID)

	stored, err := env.store.Get(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunPending, stored.Status)
	assert.DirExists(t, stored.Dir)
}

func TestCreateRunRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `topic=eclipses`},
		{"missing topic", `{"source":"news"}`},
		{"unknown source", `{"topic":"eclipses","source":"tv"}`},
		{"too many records", `{"topic":"eclipses","count":500}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, env.dispatcher.runs)
}

func TestCreateRunDispatchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.err = errors.New("redis down")

	rec := env.do(t, http.MethodPost, "/api/runs", `{"topic":"solar eclipses"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetAndListRuns(t *testing.T) {
	env := newTestEnv(t)
	env.saveRun(t, "run00001", func(r *types.PipelineRun) { r.Status = types.RunRunning; r.Stage = "scenes" })

	rec := env.do(t, http.MethodGet, "/api/runs/run00001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run00001", got["run_id"])
	assert.Equal(t, "scenes", got["stage"])

	rec = env.do(t, http.MethodGet, "/api/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []store.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, types.RunRunning, list[0].Status)

	rec = env.do(t, http.MethodGet, "/api/runs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloads(t *testing.T) {
	env := newTestEnv(t)
	env.saveRun(t, "pending1", nil)

	rec := env.do(t, http.MethodGet, "/api/runs/pending1/video", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/runs/pending1/results", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	env.saveRun(t, "done0001", func(r *types.PipelineRun) {
		r.Status = types.RunCompleted
		r.Outputs.FinalVideo = filepath.Join(r.Dir, "final_video.mp4")
		r.Outputs.ResultsCSV = filepath.Join(r.Dir, "results.csv")
		require.NoError(t, os.WriteFile(r.Outputs.FinalVideo, []byte("video"), 0644))
		require.NoError(t, os.WriteFile(r.Outputs.ResultsCSV, []byte("Title,Link\n"), 0644))
	})

	rec = env.do(t, http.MethodGet, "/api/runs/done0001/video", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "final_video.mp4")

	rec = env.do(t, http.MethodGet, "/api/runs/done0001/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	rec = env.do(t, http.MethodGet, "/api/runs/done0001/video?music=false", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/runs/done0001/video?music=true", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/runs/done0001/video?music=loud", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodOptions, "/api/runs", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunWebSocket(t *testing.T) {
	env := newTestEnv(t)
	env.saveRun(t, "live0001", func(r *types.PipelineRun) { r.Status = types.RunRunning; r.Stage = "research" })

	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live0001"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first events.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "live0001", first.RunID)
	assert.Equal(t, "research", first.Stage)
	assert.Equal(t, string(types.RunRunning), first.Status)

	require.Eventually(t, func() bool { return env.hub.Subscribers("live0001") == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, env.hub.Publish(context.Background(), events.Event{RunID: "live0001", Kind: events.SceneReady, SceneIndex: events.Scene(0)}))

	var next events.Event
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, events.SceneReady, next.Kind)
	require.NotNil(t, next.SceneIndex)
	assert.Equal(t, 0, *next.SceneIndex)
}

func TestRunWebSocketUnknownRun(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/ws/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
