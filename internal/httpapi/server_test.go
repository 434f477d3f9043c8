package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fsp-tools/voiced/internal/audio"
	"github.com/fsp-tools/voiced/internal/config"
	"github.com/fsp-tools/voiced/internal/job"
	"github.com/fsp-tools/voiced/internal/model"
	"github.com/fsp-tools/voiced/internal/profile"
	"github.com/fsp-tools/voiced/internal/recognition"
	"github.com/fsp-tools/voiced/internal/synth"
)

type testEnv struct {
	srv    *httptest.Server
	store  *profile.Store
	gw     *model.MockGateway
	runner *job.Runner
	engine *recognition.Engine
}

func newTestEnv(t *testing.T, mode model.Mode) *testEnv {
	t.Helper()
	dir := t.TempDir()

	sink, err := profile.NewFileSink(filepath.Join(dir, "profiles.json"))
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	store, err := profile.NewStore(context.Background(), filepath.Join(dir, "profiles"), sink, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	gw := model.NewMockGateway(mode, filepath.Join(dir, "engine"))
	prep := audio.NewPreprocessor(22050, 3, 5, audio.DefaultVADConfig(), zerolog.Nop())
	runner := job.NewRunner(store, prep, gw, nil, job.Config{
		EmbeddingsDir: filepath.Join(dir, "embeddings"),
		CombineGap:    500 * time.Millisecond,
		ReferenceGap:  300 * time.Millisecond,
		NormalizeDBFS: -20,
		ReferenceMax:  30 * time.Second,
		Timeout:       time.Minute,
	}, zerolog.Nop())
	syn, err := synth.NewSynthesizer(store, gw, filepath.Join(dir, "out"), 500, 150*time.Millisecond, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSynthesizer() error = %v", err)
	}
	engine := recognition.NewEngine(gw, nil, recognition.Config{
		SampleRate: 16000,
		QueueSize:  16,
		JoinGrace:  2 * time.Second,
	}, zerolog.Nop())

	cfg := &config.Config{Backend: config.BackendMock, Addr: ":0"}
	srv := httptest.NewServer(New(cfg, store, prep, runner, syn, engine, gw, nil, zerolog.Nop()).Router())
	t.Cleanup(func() {
		engine.Stop()
		srv.Close()
	})
	return &testEnv{srv: srv, store: store, gw: gw, runner: runner, engine: engine}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("%s %s: decode response %q: %v", method, path, raw, err)
		}
	}
	return resp, decoded
}

func writeSampleWAV(t *testing.T, dir, name string, seconds float64) string {
	t.Helper()
	const rate = 22050
	n := int(seconds * rate)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(9000 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	path := filepath.Join(dir, name)
	if err := audio.WriteWAVFile(path, audio.Clip{Samples: samples, Rate: rate}); err != nil {
		t.Fatalf("WriteWAVFile() error = %v", err)
	}
	return path
}

func (e *testEnv) createProfile(t *testing.T, name string, samples []string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/v1/profiles", map[string]any{
		"name":          name,
		"audio_samples": samples,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create profile status = %d, body %v", resp.StatusCode, body)
	}
	id, _ := body["id"].(string)
	if !strings.HasPrefix(id, "voice-") {
		t.Fatalf("profile id = %q, want voice- prefix", id)
	}
	return id
}

func (e *testEnv) trainProfile(t *testing.T, name string) string {
	t.Helper()
	dir := t.TempDir()
	id := e.createProfile(t, name, []string{
		writeSampleWAV(t, dir, "a.wav", 4),
		writeSampleWAV(t, dir, "b.wav", 4),
	})
	resp, body := e.do(t, http.MethodPost, "/v1/profiles/"+id+"/process", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("process status = %d, body %v", resp.StatusCode, body)
	}
	if !e.runner.Wait(10 * time.Second) {
		t.Fatal("training did not finish in time")
	}
	p, err := e.store.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.State != profile.StateReady {
		t.Fatalf("profile state = %q (error %q), want ready", p.State, p.Error)
	}
	return id
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)

	resp, body := env.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	if body["backend"] != config.BackendMock {
		t.Errorf("backend = %v, want mock", body["backend"])
	}

	resp, _ = env.do(t, http.MethodGet, "/readyz", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz before init status = %d, want 503", resp.StatusCode)
	}

	if resp, body = env.do(t, http.MethodPost, "/v1/recognition/initialize", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize status = %d, body %v", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodGet, "/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz after init status = %d, want 200", resp.StatusCode)
	}
}

func TestProfileLifecycle(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)
	dir := t.TempDir()
	sample := writeSampleWAV(t, dir, "a.wav", 4)

	id := env.createProfile(t, "alice", []string{sample})

	resp, body := env.do(t, http.MethodGet, "/v1/profiles/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if body["state"] != "pending" {
		t.Errorf("state = %v, want pending", body["state"])
	}

	resp, body = env.do(t, http.MethodGet, "/v1/profiles", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if list, ok := body["profiles"].([]any); !ok || len(list) != 1 {
		t.Errorf("profiles list = %v, want one entry", body["profiles"])
	}

	resp, body = env.do(t, http.MethodDelete, "/v1/profiles/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, body %v", resp.StatusCode, body)
	}
	resp, body = env.do(t, http.MethodGet, "/v1/profiles/"+id, nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "profile_not_found" {
		t.Fatalf("get deleted: status = %d, code = %v", resp.StatusCode, body["code"])
	}
}

func TestCreateProfileValidation(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)

	resp, body := env.do(t, http.MethodPost, "/v1/profiles", map[string]any{"name": "  "})
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "missing_name" {
		t.Errorf("blank name: status = %d, code = %v", resp.StatusCode, body["code"])
	}

	resp, body = env.do(t, http.MethodPost, "/v1/profiles", map[string]any{
		"name":          "bob",
		"audio_samples": []string{"/nonexistent/clip.wav"},
	})
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "sample_not_found" {
		t.Errorf("missing sample: status = %d, code = %v", resp.StatusCode, body["code"])
	}
}

func TestReplaceSamplesMultipart(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)
	dir := t.TempDir()
	id := env.createProfile(t, "carol", []string{writeSampleWAV(t, dir, "old.wav", 4)})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "fresh.wav")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	clip := audio.Silence(time.Second, 22050)
	wav, err := audio.EncodeWAV(clip)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	if _, err := part.Write(wav); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPut, env.srv.URL+"/v1/profiles/"+id+"/samples", &buf)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("PUT samples: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("replace samples status = %d, body %s", resp.StatusCode, raw)
	}

	p, err := env.store.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.State != profile.StatePending {
		t.Errorf("state after replace = %q, want pending", p.State)
	}
	if len(p.SamplePaths) != 1 || filepath.Base(p.SamplePaths[0]) != "fresh.wav" {
		t.Errorf("sample paths = %v, want single fresh.wav", p.SamplePaths)
	}
}

func TestProcessProfileTrainsToReady(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)
	id := env.trainProfile(t, "dave")

	resp, body := env.do(t, http.MethodGet, "/v1/profiles/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if body["state"] != "ready" {
		t.Errorf("state = %v, want ready", body["state"])
	}
	if body["progress"] != float64(100) {
		t.Errorf("progress = %v, want 100", body["progress"])
	}
}

func TestProcessProfileErrors(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)

	resp, body := env.do(t, http.MethodPost, "/v1/profiles/voice-deadbeef/process", nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "profile_not_found" {
		t.Errorf("unknown profile: status = %d, code = %v", resp.StatusCode, body["code"])
	}

	id := env.createProfile(t, "erin", nil)
	resp, body = env.do(t, http.MethodPost, "/v1/profiles/"+id+"/process", nil)
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "missing_samples" {
		t.Errorf("no samples: status = %d, code = %v", resp.StatusCode, body["code"])
	}
}

func TestSynthesizeAndFetchAudio(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)
	id := env.trainProfile(t, "frank")

	resp, body := env.do(t, http.MethodPost, "/v1/synthesize", map[string]any{
		"profile_id": id,
		"text":       "Hello there.",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("synthesize status = %d, body %v", resp.StatusCode, body)
	}
	url, _ := body["url"].(string)
	if !strings.HasPrefix(url, "/v1/audio/synth-") {
		t.Fatalf("url = %q, want /v1/audio/synth- prefix", url)
	}
	if sec, _ := body["duration_seconds"].(float64); sec <= 0 {
		t.Errorf("duration_seconds = %v, want > 0", body["duration_seconds"])
	}

	audioResp, err := env.srv.Client().Get(env.srv.URL + url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer audioResp.Body.Close()
	if audioResp.StatusCode != http.StatusOK {
		t.Fatalf("fetch audio status = %d", audioResp.StatusCode)
	}
	raw, err := io.ReadAll(audioResp.Body)
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if _, err := audio.DecodeWAV(raw); err != nil {
		t.Errorf("served artifact is not a WAV: %v", err)
	}

	resp, body = env.do(t, http.MethodGet, "/v1/audio/synth-nope.wav", nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "audio_not_found" {
		t.Errorf("missing artifact: status = %d, code = %v", resp.StatusCode, body["code"])
	}
}

func TestSynthesizeLong(t *testing.T) {
	env := newTestEnv(t, model.ModeZeroShot)
	id := env.trainProfile(t, "grace")

	resp, body := env.do(t, http.MethodPost, "/v1/synthesize/long", map[string]any{
		"profile_id": id,
		"text":       "First sentence here. Second sentence here. Third sentence here.",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("synthesize/long status = %d, body %v", resp.StatusCode, body)
	}
	if body["chunks_failed"] != float64(0) {
		t.Errorf("chunks_failed = %v, want 0", body["chunks_failed"])
	}
}

func TestSynthesizeValidation(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)
	dir := t.TempDir()
	pending := env.createProfile(t, "henry", []string{writeSampleWAV(t, dir, "a.wav", 4)})

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing profile id", map[string]any{"text": "hi"}, http.StatusBadRequest, "missing_profile_id"},
		{"empty text", map[string]any{"profile_id": pending, "text": "  "}, http.StatusBadRequest, "empty_text"},
		{"unknown profile", map[string]any{"profile_id": "voice-deadbeef", "text": "hi"}, http.StatusNotFound, "profile_not_found"},
		{"not ready", map[string]any{"profile_id": pending, "text": "hi"}, http.StatusConflict, "profile_not_ready"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/v1/synthesize", tc.body)
			if resp.StatusCode != tc.status || body["code"] != tc.code {
				t.Errorf("status = %d code = %v, want %d %s", resp.StatusCode, body["code"], tc.status, tc.code)
			}
		})
	}
}

func TestValidateAudioEndpoint(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)
	dir := t.TempDir()
	good := writeSampleWAV(t, dir, "good.wav", 10)

	resp, body := env.do(t, http.MethodPost, "/v1/audio/validate", map[string]any{
		"paths": []string{good, "/nonexistent/bad.wav"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validate status = %d", resp.StatusCode)
	}
	if ok, _ := body["valid"].(bool); ok {
		t.Errorf("valid = true, want false with an unreadable file")
	}
	errs, _ := body["errors"].([]any)
	if len(errs) != 1 {
		t.Errorf("errors = %v, want one entry", body["errors"])
	}
}

func TestRecognitionRESTFlow(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)
	env.do(t, http.MethodPost, "/v1/recognition/initialize", nil)

	resp, body := env.do(t, http.MethodPost, "/v1/recognition/start", map[string]any{"sample_rate": 16000})
	if resp.StatusCode != http.StatusOK || body["state"] != "listening" {
		t.Fatalf("start: status = %d, state = %v", resp.StatusCode, body["state"])
	}

	chunk := bytes.Repeat([]byte{1, 0}, 1600)
	for i := 0; i < 4; i++ {
		req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/v1/recognition/audio", bytes.NewReader(chunk))
		if err != nil {
			t.Fatalf("NewRequest() error = %v", err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		r, err := env.srv.Client().Do(req)
		if err != nil {
			t.Fatalf("POST audio: %v", err)
		}
		var out map[string]any
		if err := json.NewDecoder(r.Body).Decode(&out); err != nil {
			t.Fatalf("decode audio response: %v", err)
		}
		r.Body.Close()
		if ok, _ := out["accepted"].(bool); !ok {
			t.Fatalf("chunk %d not accepted: %v", i, out)
		}
	}

	// The consumer is asynchronous; poll until the final shows up.
	deadline := time.Now().Add(5 * time.Second)
	var final string
	for time.Now().Before(deadline) && final == "" {
		_, body = env.do(t, http.MethodGet, "/v1/recognition/results", nil)
		results, _ := body["results"].([]any)
		for _, raw := range results {
			ev, _ := raw.(map[string]any)
			if fin, _ := ev["final"].(bool); fin {
				final, _ = ev["text"].(string)
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	if final != "utterance 1" {
		t.Fatalf("final = %q, want %q", final, "utterance 1")
	}

	resp, body = env.do(t, http.MethodPost, "/v1/recognition/stop", nil)
	if resp.StatusCode != http.StatusOK || body["state"] != "idle" {
		t.Fatalf("stop: status = %d, state = %v", resp.StatusCode, body["state"])
	}

	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/v1/recognition/audio", bytes.NewReader(chunk))
	req.Header.Set("Content-Type", "application/octet-stream")
	r, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST audio after stop: %v", err)
	}
	var out map[string]any
	if err := json.NewDecoder(r.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	r.Body.Close()
	if ok, _ := out["accepted"].(bool); ok {
		t.Error("chunk accepted after stop, want dropped")
	}
}

func TestRecognitionStartRequiresInit(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)
	resp, body := env.do(t, http.MethodPost, "/v1/recognition/start", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || body["code"] != "model_not_initialized" {
		t.Errorf("status = %d, code = %v, want 503 model_not_initialized", resp.StatusCode, body["code"])
	}
}

func TestGrammarEndpoints(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)

	resp, body := env.do(t, http.MethodPost, "/v1/recognition/grammar", map[string]any{
		"words": []string{"Forward", "back", "forward"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set grammar status = %d", resp.StatusCode)
	}
	n, _ := body["words"].(float64)
	if n < 3 {
		t.Errorf("words = %v, want at least the two commands plus fillers", body["words"])
	}

	resp, body = env.do(t, http.MethodDelete, "/v1/recognition/grammar", nil)
	if resp.StatusCode != http.StatusOK || body["words"] != float64(0) {
		t.Errorf("clear grammar: status = %d, words = %v", resp.StatusCode, body["words"])
	}
	if g := env.engine.Grammar(); len(g) != 0 {
		t.Errorf("Grammar() = %v, want empty", g)
	}
}

func TestRecognizeOnce(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)
	env.do(t, http.MethodPost, "/v1/recognition/initialize", nil)

	var mu sync.Mutex
	done := false
	env.gw.RecognizerFactory = func(int, []string) (model.Recognizer, error) {
		return &model.MockRecognizer{AcceptFn: func(chunk []byte) (model.Result, error) {
			mu.Lock()
			defer mu.Unlock()
			if chunk == nil || done {
				return model.Result{}, nil
			}
			done = true
			return model.Result{Final: true, Text: "hello world"}, nil
		}}, nil
	}

	clip := audio.Silence(time.Second, 16000)
	wav, err := audio.EncodeWAV(clip)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/v1/recognition/recognize", bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST recognize: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body["text"] != "hello world" {
		t.Fatalf("status = %d, text = %v, want 200 %q", resp.StatusCode, body["text"], "hello world")
	}
}

func TestRecognizeOnceRefusedWhileStreaming(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)
	env.do(t, http.MethodPost, "/v1/recognition/initialize", nil)
	env.do(t, http.MethodPost, "/v1/recognition/start", nil)

	clip := audio.Silence(200*time.Millisecond, 16000)
	wav, _ := audio.EncodeWAV(clip)
	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/v1/recognition/recognize", bytes.NewReader(wav))
	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST recognize: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusConflict || body["code"] != "recognition_busy" {
		t.Errorf("status = %d, code = %v, want 409 recognition_busy", resp.StatusCode, body["code"])
	}
}

func TestRecognitionWebSocket(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)
	env.do(t, http.MethodPost, "/v1/recognition/initialize", nil)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/v1/recognition/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	chunk := bytes.Repeat([]byte{1, 0}, 1600)
	for i := 0; i < 4; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}

	// Events flow back as JSON text frames; the fourth chunk produces a
	// final. Read until it arrives.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var ev recognition.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if ev.Final {
			if ev.Text != "utterance 1" {
				t.Fatalf("final text = %q, want %q", ev.Text, "utterance 1")
			}
			break
		}
	}

	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for env.engine.State() != recognition.StateIdle {
		if time.Now().After(deadline) {
			t.Fatal("engine still listening after websocket close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDeleteProfileWhileTrainingConflicts(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)
	dir := t.TempDir()
	id := env.createProfile(t, "iris", []string{writeSampleWAV(t, dir, "a.wav", 4)})

	// Hold the job in flight at the embedding step.
	proceed := make(chan struct{})
	env.gw.ExtractHook = func() { <-proceed }

	resp, body := env.do(t, http.MethodPost, "/v1/profiles/"+id+"/process", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("process status = %d, body %v", resp.StatusCode, body)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if active, busy := env.runner.Active(); busy && active == id {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never became active")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, body = env.do(t, http.MethodDelete, "/v1/profiles/"+id, nil)
	if resp.StatusCode != http.StatusConflict || body["code"] != "training_busy" {
		t.Errorf("delete during training: status = %d, code = %v", resp.StatusCode, body["code"])
	}

	close(proceed)
	if !env.runner.Wait(10 * time.Second) {
		t.Fatal("job did not finish after unblocking")
	}
}

func TestRouteErrorShapes(t *testing.T) {
	env := newTestEnv(t, model.ModeConversion)

	resp, body := env.do(t, http.MethodPost, "/v1/synthesize", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty body synthesize status = %d, want 400", resp.StatusCode)
	}
	if _, ok := body["error"].(string); !ok {
		t.Errorf("error payload missing error field: %v", body)
	}
	if _, ok := body["code"].(string); !ok {
		t.Errorf("error payload missing code field: %v", body)
	}
}
