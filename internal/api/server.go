// Package api exposes the pipeline over HTTP: snapshot management, an
// asynchronous ingest endpoint with a websocket event stream per run, and
// a synchronous question endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"repoqa/internal/analyze"
	"repoqa/internal/snapshot"
	"repoqa/internal/source"
	"repoqa/internal/summarize"
	"repoqa/internal/workflow"
)

type Config struct {
	Pipeline *workflow.Pipeline
	Store    snapshot.Store
	Log      *slog.Logger
}

type Server struct {
	pipe   *workflow.Pipeline
	store  snapshot.Store
	runs   *Registry
	log    *slog.Logger
	router *chi.Mux
}

func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		pipe:  cfg.Pipeline,
		store: cfg.Store,
		runs:  NewRegistry(),
		log:   log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/snapshots", s.listSnapshots)
		r.Get("/snapshots/{handle}", s.getSnapshot)
		r.Post("/snapshots/{handle}/load", s.loadSnapshot)
		r.Post("/ingest", s.ingest)
		r.Post("/ask", s.ask)
		r.Get("/stats", s.stats)
		r.Get("/runs/{id}", s.getRun)
		r.Get("/runs/{id}/events", s.runEvents)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is canceled, then drains connections. h2c keeps
// plaintext HTTP/2 available for clients that want it.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(s.router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("api server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  s.pipe.State().String(),
	})
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if infos == nil {
		infos = []snapshot.HandleInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": infos})
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Load(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	snap, err := s.pipe.Load(r.Context(), handle)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"handle":      handle,
		"repo_url":    snap.Metadata.RepoRef,
		"total_files": snap.Metadata.TotalFiles,
	})
}

type ingestRequest struct {
	Repo string `json:"repo"`
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	repo := strings.TrimSpace(req.Repo)
	if repo == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "repo is required"})
		return
	}

	run := s.runs.Create(repo)
	// The run outlives the request on purpose; clients follow it via
	// /runs/{id}/events.
	go func() {
		run.start()
		ctx := summarize.WithProgress(context.Background(), func(path string, err error) {
			evt := Event{Type: "file", Path: path}
			if err != nil {
				evt.Message = err.Error()
			}
			run.publish(evt)
		})
		res, err := s.pipe.Ingest(ctx, repo)
		if err != nil {
			s.log.Warn("ingest run failed", "run", run.ID, "repo", repo, "err", err)
			run.fail(err.Error())
			return
		}
		run.complete(res.Handle, len(res.Failures))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	result, err := s.pipe.Ask(r.Context(), req.Question, req.TopK)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	_, snap, ok := s.pipe.Current()
	if !ok {
		s.writeError(w, workflow.ErrNotReady)
		return
	}
	a := analyze.New(snap)
	writeJSON(w, http.StatusOK, map[string]any{
		"repo_url":     snap.Metadata.RepoRef,
		"total_files":  snap.Metadata.TotalFiles,
		"total_size":   snap.Metadata.TotalSizeBytes,
		"languages":    a.LanguageDistribution(),
		"dependencies": a.TopDependencies(10),
		"concepts":     a.TopConcepts(20),
	})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown run"})
		return
	}
	writeJSON(w, http.StatusOK, run.Info())
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrBusy), errors.Is(err, workflow.ErrNotReady):
		status = http.StatusConflict
	case errors.Is(err, snapshot.ErrNotFound), errors.Is(err, source.ErrNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
