package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"topic-video-pipeline/config"
	"topic-video-pipeline/events"
	"topic-video-pipeline/orchestrator"
	"topic-video-pipeline/store"
	"topic-video-pipeline/types"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes runs over HTTP and streams their events over WebSocket
type Server struct {
	cfg        *config.Config
	router     *chi.Mux
	store      store.RunStore
	dispatcher orchestrator.Dispatcher
	hub        *events.Hub
}

func New(cfg *config.Config, st store.RunStore, d orchestrator.Dispatcher, hub *events.Hub) *Server {
	s := &Server{
		cfg:        cfg,
		router:     chi.NewRouter(),
		store:      st,
		dispatcher: d,
		hub:        hub,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(corsMiddleware)

	s.router.Get("/healthz", s.health)
	s.router.Get("/ws/{id}", s.runWS)

	s.router.Route("/api/runs", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Post("/", s.createRun)
		r.Get("/", s.listRuns)
		r.Get("/{id}", s.getRun)
		r.Get("/{id}/results", s.downloadResults)
		r.Get("/{id}/video", s.downloadVideo)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": time.Now().Format(time.RFC3339)})
}

type createRunResponse struct {
	RunID  string          `json:"run_id"`
	Status types.RunStatus `json:"status"`
	Query  types.Query     `json:"query"`
	Events string          `json:"events_url"`
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var q types.Query
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&q); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	run, err := orchestrator.NewRun(s.cfg, q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.Save(r.Context(), run); err != nil {
		log.Printf("[server] ❌ save run %s: %v", run.ID, err)
		http.Error(w, "could not save run", http.StatusInternalServerError)
		return
	}
	if err := s.dispatcher.Dispatch(r.Context(), run); err != nil {
		log.Printf("[server] ❌ dispatch run %s: %v", run.ID, err)
		http.Error(w, "could not start run", http.StatusServiceUnavailable)
		return
	}

	log.Printf("[server] Run %s accepted: %q (%s)", run.ID, run.Query.Topic, run.Query.Source)
	respondJSON(w, http.StatusAccepted, createRunResponse{
		RunID:  run.ID,
		Status: types.RunPending,
		Query:  run.Query,
		Events: "/ws/" + run.ID,
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.store.List(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) downloadResults(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if run.Outputs.ResultsCSV == "" {
		http.Error(w, "results are not ready", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	serveAttachment(w, r, run.Outputs.ResultsCSV)
}

// downloadVideo serves the plain cut; ?music=true selects the cut with
// background music and ?subtitled=true the one with burned-in subtitles
func (s *Server) downloadVideo(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}

	withMusic, err := boolParam(r, "music")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	subtitled, err := boolParam(r, "subtitled")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	path := run.Outputs.FinalVideo
	switch {
	case subtitled:
		path = run.Outputs.Subtitled
	case withMusic:
		path = run.Outputs.FinalWithMusic
	}
	if path == "" {
		http.Error(w, "video is not ready", http.StatusConflict)
		return
	}
	serveAttachment(w, r, path)
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false", name)
	}
	return b, nil
}

func (s *Server) runWS(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	initial, ok := s.hub.Last(runID)
	if !ok {
		run, err := s.store.Get(r.Context(), runID)
		if err != nil {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		initial = events.Event{RunID: run.ID, Kind: events.StageStarted, Stage: run.Stage, Status: string(run.Status), Time: time.Now().UTC()}
		if run.Status == types.RunCompleted || run.Status == types.RunDegraded || run.Status == types.RunFailed {
			initial.Kind = events.RunFinished
			initial.Error = run.Error
		}
	}
	s.hub.ServeWS(w, r, runID, &initial)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*types.PipelineRun, bool) {
	run, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}

func serveAttachment(w http.ResponseWriter, r *http.Request, path string) {
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(path)+"\"")
	http.ServeFile(w, r, path)
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[server] failed to encode json: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
