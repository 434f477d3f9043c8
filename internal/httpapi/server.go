// Package httpapi exposes the service over HTTP: profile management,
// synthesis, audio validation, and streaming recognition.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fsp-tools/voiced/internal/audio"
	"github.com/fsp-tools/voiced/internal/config"
	"github.com/fsp-tools/voiced/internal/job"
	"github.com/fsp-tools/voiced/internal/model"
	"github.com/fsp-tools/voiced/internal/observability"
	"github.com/fsp-tools/voiced/internal/profile"
	"github.com/fsp-tools/voiced/internal/recognition"
	"github.com/fsp-tools/voiced/internal/synth"
)

type Server struct {
	cfg      *config.Config
	store    *profile.Store
	prep     *audio.Preprocessor
	runner   *job.Runner
	synth    *synth.Synthesizer
	engine   *recognition.Engine
	gateway  model.Gateway
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func New(cfg *config.Config, store *profile.Store, prep *audio.Preprocessor, runner *job.Runner, syn *synth.Synthesizer, engine *recognition.Engine, gateway model.Gateway, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		prep:    prep,
		runner:  runner,
		synth:   syn,
		engine:  engine,
		gateway: gateway,
		metrics: metrics,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The service binds to loopback; non-browser clients omit
			// Origin entirely.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/profiles", s.handleCreateProfile)
	r.Get("/v1/profiles", s.handleListProfiles)
	r.Get("/v1/profiles/{id}", s.handleGetProfile)
	r.Delete("/v1/profiles/{id}", s.handleDeleteProfile)
	r.Put("/v1/profiles/{id}/samples", s.handleReplaceSamples)
	r.Post("/v1/profiles/{id}/process", s.handleProcessProfile)

	r.Post("/v1/audio/validate", s.handleValidateAudio)
	r.Get("/v1/audio/{filename}", s.handleServeAudio)

	r.Post("/v1/synthesize", s.handleSynthesize)
	r.Post("/v1/synthesize/long", s.handleSynthesizeLong)
	r.Post("/v1/synthesize/stream", s.handleSynthesizeStream)

	r.Post("/v1/recognition/initialize", s.handleRecognitionInitialize)
	r.Post("/v1/recognition/start", s.handleRecognitionStart)
	r.Post("/v1/recognition/stop", s.handleRecognitionStop)
	r.Post("/v1/recognition/audio", s.handleRecognitionAudio)
	r.Get("/v1/recognition/results", s.handleRecognitionResults)
	r.Post("/v1/recognition/grammar", s.handleSetGrammar)
	r.Delete("/v1/recognition/grammar", s.handleClearGrammar)
	r.Post("/v1/recognition/recognize", s.handleRecognizeOnce)
	r.Get("/v1/recognition/ws", s.handleRecognitionWS)

	r.Get("/v1/model/status", s.handleModelStatus)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"backend":     s.cfg.Backend,
		"profiles":    s.store.Count(),
		"recognizing": s.engine.State() == recognition.StateListening,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	st := s.gateway.Status(r.Context())
	status := http.StatusOK
	text := "ready"
	if !st.Initialized {
		status = http.StatusServiceUnavailable
		text = "initializing"
	}
	respondJSON(w, status, map[string]any{
		"status":      text,
		"initialized": st.Initialized,
		"mode":        st.Mode,
	})
}

func (s *Server) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	st := s.gateway.Status(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"initialized":  st.Initialized,
		"assets_found": st.AssetsFound,
		"mode":         st.Mode,
		"detail":       st.Detail,
		"recognition":  s.engine.State().String(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondDomainError translates package sentinels into HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profile.ErrNotFound):
		respondError(w, http.StatusNotFound, "profile_not_found", err.Error())
	case errors.Is(err, job.ErrBusy):
		respondError(w, http.StatusConflict, "training_busy", err.Error())
	case errors.Is(err, job.ErrNoSamples):
		respondError(w, http.StatusBadRequest, "missing_samples", err.Error())
	case errors.Is(err, recognition.ErrBusy):
		respondError(w, http.StatusConflict, "recognition_busy", err.Error())
	case errors.Is(err, synth.ErrProfileNotReady):
		respondError(w, http.StatusConflict, "profile_not_ready", err.Error())
	case errors.Is(err, synth.ErrEmptyText):
		respondError(w, http.StatusBadRequest, "empty_text", err.Error())
	case errors.Is(err, synth.ErrAllChunksFailed):
		respondError(w, http.StatusBadGateway, "synthesis_failed", err.Error())
	case errors.Is(err, model.ErrNotInitialized):
		respondError(w, http.StatusServiceUnavailable, "model_not_initialized", err.Error())
	case errors.Is(err, model.ErrAssetsMissing):
		respondError(w, http.StatusServiceUnavailable, "model_assets_missing", err.Error())
	case errors.Is(err, audio.ErrNoUsableSamples), errors.Is(err, audio.ErrNotWAV):
		respondError(w, http.StatusBadRequest, "invalid_audio", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
