package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fsp-tools/voiced/internal/synth"
)

type synthesizeRequest struct {
	ProfileID string  `json:"profile_id"`
	Text      string  `json:"text"`
	Language  string  `json:"language"`
	Speed     float64 `json:"speed"`
}

type synthesizeResponse struct {
	Filename        string  `json:"filename"`
	URL             string  `json:"url"`
	Seconds         float64 `json:"duration_seconds"`
	ChunksAttempted int     `json:"chunks_attempted"`
	ChunksFailed    int     `json:"chunks_failed"`
}

func (s *Server) decodeSynthesisRequest(w http.ResponseWriter, r *http.Request) (synth.Request, bool) {
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return synth.Request{}, false
	}
	if strings.TrimSpace(req.ProfileID) == "" {
		respondError(w, http.StatusBadRequest, "missing_profile_id", "profile_id is required")
		return synth.Request{}, false
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "empty_text", "text is required")
		return synth.Request{}, false
	}
	return synth.Request{
		ProfileID: req.ProfileID,
		Text:      req.Text,
		Language:  req.Language,
		Speed:     req.Speed,
	}, true
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSynthesisRequest(w, r)
	if !ok {
		return
	}
	res, err := s.synth.SynthesizeOne(r.Context(), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toResponse(res))
}

func (s *Server) handleSynthesizeLong(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSynthesisRequest(w, r)
	if !ok {
		return
	}
	res, err := s.synth.SynthesizeLong(r.Context(), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toResponse(res))
}

// handleSynthesizeStream responds with the rendered audio directly
// instead of a reference to it.
func (s *Server) handleSynthesizeStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSynthesisRequest(w, r)
	if !ok {
		return
	}
	res, err := s.synth.SynthesizeLong(r.Context(), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, res.Path)
}

func toResponse(res synth.Result) synthesizeResponse {
	name := filepath.Base(res.Path)
	return synthesizeResponse{
		Filename:        name,
		URL:             "/v1/audio/" + name,
		Seconds:         res.Seconds,
		ChunksAttempted: res.ChunksAttempted,
		ChunksFailed:    res.ChunksFailed,
	}
}

func (s *Server) handleServeAudio(w http.ResponseWriter, r *http.Request) {
	path, err := s.synth.OutputPath(chi.URLParam(r, "filename"))
	if err != nil {
		if os.IsNotExist(err) {
			respondError(w, http.StatusNotFound, "audio_not_found", "no such artifact")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_filename", err.Error())
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

type validateRequest struct {
	Paths []string `json:"paths"`
}

func (s *Server) handleValidateAudio(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.prep.ValidateBatch(req.Paths))
}
