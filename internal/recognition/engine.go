// Package recognition runs the streaming speech-to-text session: one
// producer pushing audio chunks, one consumer goroutine feeding them to
// the recognizer, and a coalesced result list in between.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fsp-tools/voiced/internal/audio"
	"github.com/fsp-tools/voiced/internal/model"
	"github.com/fsp-tools/voiced/internal/observability"
)

// State is the engine lifecycle. The zero value is Idle.
type State int

const (
	StateIdle State = iota
	StateListening
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrBusy is returned by operations that need exclusive recognizer
// access while a streaming session is running.
var ErrBusy = errors.New("recognition: a streaming session is active")

// Event is one recognition emission handed to clients. At most one
// non-final event sits at the tail of any ReadResults batch.
type Event struct {
	Final bool     `json:"final"`
	Text  string   `json:"text"`
	Words []string `json:"words,omitempty"`
}

// Config tunes the engine.
type Config struct {
	SampleRate int
	QueueSize  int
	JoinGrace  time.Duration
}

// Engine owns the single streaming recognition session.
//
// Chunk flow is a bounded channel: PushChunk never blocks the caller,
// dropping instead when the consumer falls behind. Stop flips the state
// to Idle immediately and then waits briefly for the consumer; a missed
// join is tolerated because the consumer only touches its own recognizer
// after that point.
type Engine struct {
	gateway model.Gateway
	metrics *observability.Metrics
	log     zerolog.Logger
	cfg     Config

	grammarMu sync.Mutex
	grammar   []string

	mu     sync.Mutex
	state  State
	chunks chan []byte
	cancel context.CancelFunc
	done   chan struct{}

	resultsMu sync.Mutex
	finals    []Event
	partial   *Event
}

func NewEngine(gateway model.Gateway, metrics *observability.Metrics, cfg Config, log zerolog.Logger) *Engine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.JoinGrace <= 0 {
		cfg.JoinGrace = 2 * time.Second
	}
	return &Engine{gateway: gateway, metrics: metrics, cfg: cfg, log: log}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetGrammar installs a restricted vocabulary, merged with the filler
// words. It takes effect at the next Start. Empty input clears the
// grammar and returns zero.
func (e *Engine) SetGrammar(words []string) int {
	merged := MergeGrammar(words)
	e.grammarMu.Lock()
	e.grammar = merged
	e.grammarMu.Unlock()
	return len(merged)
}

// ClearGrammar removes any vocabulary restriction at the next Start.
func (e *Engine) ClearGrammar() {
	e.grammarMu.Lock()
	e.grammar = nil
	e.grammarMu.Unlock()
}

// Grammar returns a snapshot of the effective vocabulary.
func (e *Engine) Grammar() []string {
	e.grammarMu.Lock()
	defer e.grammarMu.Unlock()
	return append([]string(nil), e.grammar...)
}

// Start opens a session. Calling Start while already listening is a
// no-op, not an error. Previous results are cleared; the grammar is
// snapshotted once, so later SetGrammar calls do not affect a running
// session.
func (e *Engine) Start(ctx context.Context, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = e.cfg.SampleRate
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateListening {
		return nil
	}

	grammar := e.Grammar()
	rec, err := e.gateway.NewRecognizer(ctx, sampleRate, grammar)
	if err != nil {
		return err
	}

	e.resultsMu.Lock()
	e.finals = nil
	e.partial = nil
	e.resultsMu.Unlock()

	consumeCtx, cancel := context.WithCancel(context.Background())
	e.chunks = make(chan []byte, e.cfg.QueueSize)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state = StateListening

	go e.consume(consumeCtx, rec, e.chunks, e.done)
	e.log.Info().Int("sample_rate", sampleRate).Int("grammar_words", len(grammar)).Msg("recognition started")
	return nil
}

// Stop ends the session. The state flips to Idle before the consumer
// is joined, so chunks pushed after Stop returns are dropped even if
// the consumer needs its full grace period to unwind.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != StateListening {
		e.mu.Unlock()
		return
	}
	e.state = StateIdle
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.chunks = nil
	e.done = nil
	e.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(e.cfg.JoinGrace):
		e.log.Warn().Dur("grace", e.cfg.JoinGrace).Msg("recognition consumer did not exit in time")
	}
	if e.metrics != nil {
		e.metrics.RecognizerQueue.Set(0)
	}
	e.log.Info().Msg("recognition stopped")
}

// PushChunk enqueues audio for the consumer. It reports false when the
// chunk was dropped: either the engine is idle or the queue is full.
// It never blocks.
func (e *Engine) PushChunk(chunk []byte) bool {
	if len(chunk) == 0 {
		return false
	}
	e.mu.Lock()
	ch := e.chunks
	listening := e.state == StateListening
	e.mu.Unlock()

	if !listening || ch == nil {
		e.countChunk("dropped_idle")
		return false
	}

	// Copy: the caller may reuse its buffer (websocket frames do).
	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	select {
	case ch <- buf:
		e.countChunk("accepted")
		if e.metrics != nil {
			e.metrics.RecognizerQueue.Set(float64(len(ch)))
		}
		return true
	default:
		e.countChunk("dropped_full")
		return false
	}
}

// ReadResults drains accumulated finals. A trailing partial is included
// but retained while the session is live, since the next chunk may
// refine it; once idle it drains like everything else.
func (e *Engine) ReadResults() []Event {
	e.mu.Lock()
	listening := e.state == StateListening
	e.mu.Unlock()

	e.resultsMu.Lock()
	defer e.resultsMu.Unlock()
	out := e.finals
	e.finals = nil
	if e.partial != nil {
		out = append(out, *e.partial)
		if !listening {
			e.partial = nil
		}
	}
	return out
}

// Recognize runs a one-shot transcription over a complete WAV payload.
// It needs the recognizer to itself, so it refuses while streaming.
func (e *Engine) Recognize(ctx context.Context, wav []byte) (Event, error) {
	e.mu.Lock()
	if e.state == StateListening {
		e.mu.Unlock()
		return Event{}, ErrBusy
	}
	e.mu.Unlock()

	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return Event{}, err
	}
	clip = clip.Resample(e.cfg.SampleRate)

	rec, err := e.gateway.NewRecognizer(ctx, e.cfg.SampleRate, e.Grammar())
	if err != nil {
		return Event{}, err
	}
	defer rec.Close()

	var (
		texts []string
		words []string
	)
	pcm := audio.SamplesToBytes(clip.Samples)
	const frame = 8000 // 4000 samples
	for off := 0; off < len(pcm); off += frame {
		end := off + frame
		if end > len(pcm) {
			end = len(pcm)
		}
		res, err := rec.Accept(ctx, pcm[off:end])
		if err != nil {
			return Event{}, err
		}
		if res.Final && res.Text != "" {
			texts = append(texts, res.Text)
			words = append(words, res.Words...)
		}
	}
	// Flush the tail hypothesis.
	res, err := rec.Accept(ctx, nil)
	if err == nil && res.Text != "" {
		texts = append(texts, res.Text)
		words = append(words, res.Words...)
	}
	return Event{Final: true, Text: joinTexts(texts), Words: words}, nil
}

func joinTexts(texts []string) string {
	out := ""
	for _, t := range texts {
		if out != "" {
			out += " "
		}
		out += t
	}
	return out
}

func (e *Engine) consume(ctx context.Context, rec model.Recognizer, chunks <-chan []byte, done chan struct{}) {
	defer close(done)
	defer rec.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-chunks:
			res, err := rec.Accept(ctx, chunk)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				e.log.Warn().Err(err).Msg("recognizer rejected chunk")
				continue
			}
			e.record(res)
			if e.metrics != nil {
				e.metrics.RecognizerQueue.Set(float64(len(chunks)))
			}
		}
	}
}

// record folds one recognizer emission into the result list. Finals
// supersede the pending partial; a new partial overwrites the previous
// one, keeping at most one non-final entry at the tail.
func (e *Engine) record(res model.Result) {
	if res.Text == "" {
		return
	}
	e.resultsMu.Lock()
	defer e.resultsMu.Unlock()
	if res.Final {
		e.partial = nil
		e.finals = append(e.finals, Event{Final: true, Text: res.Text, Words: res.Words})
		return
	}
	e.partial = &Event{Text: res.Text, Words: res.Words}
}

func (e *Engine) countChunk(disposition string) {
	if e.metrics != nil {
		e.metrics.RecognizerChunks.WithLabelValues(disposition).Inc()
	}
}
