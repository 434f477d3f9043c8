package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fsp-tools/voiced/internal/reliability"
)

// HTTPGateway drives the engine and recognizer sidecars over loopback
// HTTP. Engine calls are serialized: the sidecar runs a single model
// instance and interleaved requests only queue inside it.
type HTTPGateway struct {
	mode          Mode
	engineURL     string
	recognizerURL string
	client        *http.Client

	mu sync.Mutex
}

func NewHTTPGateway(mode Mode, engineURL, recognizerURL string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPGateway{
		mode:          mode,
		engineURL:     strings.TrimRight(engineURL, "/"),
		recognizerURL: strings.TrimRight(recognizerURL, "/"),
		client:        &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) Mode() Mode { return g.mode }

func (g *HTTPGateway) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.postJSON(ctx, g.engineURL+"/initialize", struct{}{}, nil)
}

func (g *HTTPGateway) Status(ctx context.Context) Status {
	var st Status
	if err := g.getJSON(ctx, g.engineURL+"/status", &st); err != nil {
		return Status{Mode: g.mode, Detail: err.Error()}
	}
	st.Mode = g.mode
	return st
}

func (g *HTTPGateway) Synthesize(ctx context.Context, text, language string, speed float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req := struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		Speed    float64 `json:"speed"`
	}{text, language, speed}
	var resp struct {
		Path string `json:"path"`
	}
	if err := g.postJSON(ctx, g.engineURL+"/tts", req, &resp); err != nil {
		return "", err
	}
	return resp.Path, nil
}

func (g *HTTPGateway) ConvertVoice(ctx context.Context, srcWAV, srcEmbedding, targetEmbedding, outPath string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	req := struct {
		SourcePath      string `json:"source_path"`
		SourceEmbedding string `json:"source_embedding"`
		TargetEmbedding string `json:"target_embedding"`
		OutputPath      string `json:"output_path"`
	}{srcWAV, srcEmbedding, targetEmbedding, outPath}
	return g.postJSON(ctx, g.engineURL+"/convert", req, nil)
}

func (g *HTTPGateway) SynthesizeCloned(ctx context.Context, text, referenceWAV, language string, speed float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req := struct {
		Text          string  `json:"text"`
		ReferencePath string  `json:"reference_path"`
		Language      string  `json:"language"`
		Speed         float64 `json:"speed"`
	}{text, referenceWAV, language, speed}
	var resp struct {
		Path string `json:"path"`
	}
	if err := g.postJSON(ctx, g.engineURL+"/clone", req, &resp); err != nil {
		return "", err
	}
	return resp.Path, nil
}

func (g *HTTPGateway) ExtractEmbedding(ctx context.Context, wavPath string, vadGated bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req := struct {
		AudioPath string `json:"audio_path"`
		VAD       bool   `json:"vad"`
	}{wavPath, vadGated}
	var resp struct {
		Path string `json:"path"`
	}
	if err := g.postJSON(ctx, g.engineURL+"/embedding", req, &resp); err != nil {
		return "", err
	}
	return resp.Path, nil
}

func (g *HTTPGateway) BaseEmbedding(ctx context.Context) (string, error) {
	var resp struct {
		Path string `json:"path"`
	}
	if err := g.getJSON(ctx, g.engineURL+"/base-embedding", &resp); err != nil {
		return "", err
	}
	return resp.Path, nil
}

func (g *HTTPGateway) NewRecognizer(ctx context.Context, sampleRate int, grammar []string) (Recognizer, error) {
	req := struct {
		SampleRate int      `json:"sample_rate"`
		Grammar    []string `json:"grammar,omitempty"`
	}{sampleRate, grammar}
	var resp struct {
		ID string `json:"id"`
	}
	if err := g.postJSON(ctx, g.recognizerURL+"/sessions", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("model: recognizer returned empty session id")
	}
	return &httpRecognizer{
		url:    g.recognizerURL + "/sessions/" + resp.ID,
		client: g.client,
	}, nil
}

func (g *HTTPGateway) postJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return g.doRetry(ctx, http.MethodPost, url, body, out)
}

func (g *HTTPGateway) getJSON(ctx context.Context, url string, out any) error {
	return g.doRetry(ctx, http.MethodGet, url, nil, out)
}

// doRetry executes an engine call, retrying transport failures and
// retryable statuses. Errors that decoded to a domain sentinel are
// returned immediately: the engine is telling us something, not failing.
func (g *HTTPGateway) doRetry(ctx context.Context, method, url string, body []byte, out any) error {
	const attempts = 3
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reliability.Backoff(attempt, 200*time.Millisecond, 2*time.Second)):
			}
		}

		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := g.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			err := decodeError(resp.StatusCode, b)
			if isSentinel(err) || !reliability.RetryableStatus(resp.StatusCode) {
				return err
			}
			lastErr = err
			continue
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(b, out)
	}
	return lastErr
}

func isSentinel(err error) bool {
	return errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrSpeechTooShort) ||
		errors.Is(err, ErrAssetsMissing)
}

// doJSON executes the request and decodes a JSON response. Error bodies
// carry a structured code that maps to the package sentinels, so callers
// branch with errors.Is instead of matching message text.
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, b)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(b, out)
}

func decodeError(status int, body []byte) error {
	var e struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Code != "" {
		switch e.Code {
		case "not_initialized":
			return fmt.Errorf("%w: %s", ErrNotInitialized, e.Error)
		case "speech_too_short":
			return fmt.Errorf("%w: %s", ErrSpeechTooShort, e.Error)
		case "assets_missing":
			return fmt.Errorf("%w: %s", ErrAssetsMissing, e.Error)
		}
	}
	msg := strings.TrimSpace(string(body))
	if e.Error != "" {
		msg = e.Error
	}
	return fmt.Errorf("model: sidecar HTTP %d: %s", status, msg)
}

type httpRecognizer struct {
	url    string
	client *http.Client
}

func (r *httpRecognizer) Accept(ctx context.Context, chunk []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(chunk))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var res Result
	if err := doJSON(r.client, req, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (r *httpRecognizer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.url, nil)
	if err != nil {
		return err
	}
	return doJSON(r.client, req, nil)
}
