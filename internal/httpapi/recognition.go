package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fsp-tools/voiced/internal/recognition"
)

func (s *Server) handleRecognitionInitialize(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.Initialize(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"initialized": true})
}

type recognitionStartRequest struct {
	SampleRate int      `json:"sample_rate"`
	Words      []string `json:"words,omitempty"`
}

func (s *Server) handleRecognitionStart(w http.ResponseWriter, r *http.Request) {
	var req recognitionStartRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	// An inline word list replaces the stored grammar before the session
	// snapshots it.
	if len(req.Words) > 0 {
		s.engine.SetGrammar(req.Words)
	}
	if err := s.engine.Start(r.Context(), req.SampleRate); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"state": s.engine.State().String()})
}

func (s *Server) handleRecognitionStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	respondJSON(w, http.StatusOK, map[string]any{"state": s.engine.State().String()})
}

// handleRecognitionAudio feeds one raw PCM chunk. Dropped chunks are
// reported, not errors: the producer should keep streaming.
func (s *Server) handleRecognitionAudio(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	chunk, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if len(chunk) == 0 {
		respondError(w, http.StatusBadRequest, "empty_chunk", "no audio in request body")
		return
	}
	accepted := s.engine.PushChunk(chunk)
	respondJSON(w, http.StatusOK, map[string]any{"accepted": accepted})
}

func (s *Server) handleRecognitionResults(w http.ResponseWriter, _ *http.Request) {
	events := s.engine.ReadResults()
	if events == nil {
		events = []recognition.Event{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"state":   s.engine.State().String(),
		"results": events,
	})
}

type grammarRequest struct {
	Words []string `json:"words"`
}

func (s *Server) handleSetGrammar(w http.ResponseWriter, r *http.Request) {
	var req grammarRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	n := s.engine.SetGrammar(req.Words)
	respondJSON(w, http.StatusOK, map[string]any{"words": n})
}

func (s *Server) handleClearGrammar(w http.ResponseWriter, _ *http.Request) {
	s.engine.ClearGrammar()
	respondJSON(w, http.StatusOK, map[string]any{"words": 0})
}

// handleRecognizeOnce transcribes a complete WAV payload in one shot.
func (s *Server) handleRecognizeOnce(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	wav, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	ev, err := s.engine.Recognize(r.Context(), wav)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	out := map[string]any{"text": ev.Text}
	if len(ev.Words) > 0 {
		out["words"] = ev.Words
	}
	respondJSON(w, http.StatusOK, out)
}

// handleRecognitionWS runs a streaming session over a websocket: binary
// frames are audio chunks, JSON text frames flow back with results. The
// connection owns the session: it starts it on connect and stops it on
// disconnect, so a concurrent streaming session is refused up front.
func (s *Server) handleRecognitionWS(w http.ResponseWriter, r *http.Request) {
	if s.engine.State() == recognition.StateListening {
		respondError(w, http.StatusConflict, "recognition_busy", "a streaming session is active")
		return
	}
	if err := s.engine.Start(r.Context(), 0); err != nil {
		respondDomainError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.engine.Stop()
		return
	}
	defer conn.Close()
	defer s.engine.Stop()

	writerDone := make(chan struct{})
	stopWriter := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopWriter:
				return
			case <-ticker.C:
				for _, ev := range s.engine.ReadResults() {
					_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
					if err := conn.WriteJSON(ev); err != nil {
						return
					}
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		s.engine.PushChunk(data)
	}

	close(stopWriter)
	<-writerDone
}
