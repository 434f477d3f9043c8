package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

type createProfileRequest struct {
	Name         string   `json:"name"`
	AudioSamples []string `json:"audio_samples"`
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "missing_name", "profile name is required")
		return
	}
	for _, path := range req.AudioSamples {
		if _, err := os.Stat(path); err != nil {
			respondError(w, http.StatusBadRequest, "sample_not_found", fmt.Sprintf("sample %s: %v", path, err))
			return
		}
	}

	p := s.store.Create(req.Name, req.AudioSamples)
	if s.metrics != nil {
		s.metrics.Profiles.Set(float64(s.store.Count()))
	}
	s.log.Info().Str("profile", p.ID).Str("name", p.Name).Int("samples", len(p.SamplePaths)).Msg("profile created")
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"profiles": s.store.List()})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if active, busy := s.runner.Active(); busy && active == id {
		respondError(w, http.StatusConflict, "training_busy", "profile is being trained")
		return
	}
	if err := s.store.Delete(id); err != nil {
		respondDomainError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.Profiles.Set(float64(s.store.Count()))
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleReplaceSamples accepts either a multipart upload (field "files")
// stored under the profile's directory, or a JSON body of server-local
// paths. Either way the profile drops back to pending.
func (s *Server) handleReplaceSamples(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(id); err != nil {
		respondDomainError(w, err)
		return
	}
	if active, busy := s.runner.Active(); busy && active == id {
		respondError(w, http.StatusConflict, "training_busy", "profile is being trained")
		return
	}

	var paths []string
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		var err error
		paths, err = s.storeUploads(r, id)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
			return
		}
	} else {
		var req createProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		paths = req.AudioSamples
		for _, path := range paths {
			if _, err := os.Stat(path); err != nil {
				respondError(w, http.StatusBadRequest, "sample_not_found", fmt.Sprintf("sample %s: %v", path, err))
				return
			}
		}
	}
	if len(paths) == 0 {
		respondError(w, http.StatusBadRequest, "missing_samples", "no audio samples provided")
		return
	}

	p, err := s.store.ReplaceSamples(id, paths)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) storeUploads(r *http.Request, id string) ([]string, error) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		return nil, err
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, errors.New("multipart field 'files' is empty")
	}
	dir, err := s.store.Dir(id)
	if err != nil {
		return nil, err
	}

	var paths []string
	for i, fh := range files {
		name := filepath.Base(fh.Filename)
		if name == "" || name == "." || name == ".." {
			name = fmt.Sprintf("sample-%d.wav", i)
		}
		dst := filepath.Join(dir, name)
		if err := saveUpload(fh, dst); err != nil {
			return nil, err
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

// handleProcessProfile starts the training job. 202 means the job is
// running; its progress is visible on the profile resource.
func (s *Server) handleProcessProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.runner.Start(id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"profile": id,
		"status":  "processing",
	})
}
