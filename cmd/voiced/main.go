package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsp-tools/voiced/internal/audio"
	"github.com/fsp-tools/voiced/internal/config"
	"github.com/fsp-tools/voiced/internal/httpapi"
	"github.com/fsp-tools/voiced/internal/job"
	"github.com/fsp-tools/voiced/internal/model"
	"github.com/fsp-tools/voiced/internal/observability"
	"github.com/fsp-tools/voiced/internal/profile"
	"github.com/fsp-tools/voiced/internal/recognition"
	"github.com/fsp-tools/voiced/internal/synth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.InitLogger("info", false)
		boot := observability.Logger("main")
		boot.Fatal().Err(err).Msg("config error")
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	log := observability.Logger("main")

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	sink, err := profile.NewSink(ctx, cfg.DatabaseURL, cfg.ProfilesDir()+".json")
	if err != nil {
		log.Fatal().Err(err).Msg("profile sink init failed")
	}
	defer sink.Close()

	store, err := profile.NewStore(ctx, cfg.ProfilesDir(), sink, observability.Logger("profile"))
	if err != nil {
		log.Fatal().Err(err).Msg("profile store init failed")
	}
	metrics.Profiles.Set(float64(store.Count()))

	var gateway model.Gateway
	switch cfg.Backend {
	case config.BackendConversion:
		gateway = model.NewHTTPGateway(model.ModeConversion, cfg.EngineURL, cfg.RecognizerURL, time.Duration(cfg.EngineTimeout)*time.Second)
	case config.BackendZeroShot:
		gateway = model.NewHTTPGateway(model.ModeZeroShot, cfg.EngineURL, cfg.RecognizerURL, time.Duration(cfg.EngineTimeout)*time.Second)
	case config.BackendMock:
		gateway = model.NewMockGateway(model.ModeConversion, cfg.OutputDir())
	}
	log.Info().Str("backend", cfg.Backend).Msg("voice backend selected")

	// Model startup is slow (minutes on CPU); do it in the background so
	// /readyz reflects real progress instead of blocking the listener.
	go func() {
		if err := gateway.Initialize(ctx); err != nil {
			log.Error().Err(err).Msg("model initialization failed")
			return
		}
		log.Info().Msg("model initialized")
	}()

	prep := audio.NewPreprocessor(cfg.TargetSampleRate, cfg.MinClipSeconds, cfg.MinSpeechSeconds, audio.VADConfig{
		EnergyThreshold: cfg.VADEnergyThreshold,
		SilenceFrames:   cfg.VADSilenceFrames,
	}, observability.Logger("audio"))

	runner := job.NewRunner(store, prep, gateway, metrics, job.Config{
		EmbeddingsDir: cfg.EmbeddingsDir(),
		CombineGap:    time.Duration(cfg.CombineGapMS) * time.Millisecond,
		ReferenceGap:  time.Duration(cfg.ReferenceGapMS) * time.Millisecond,
		NormalizeDBFS: cfg.NormalizeDBFS,
		ReferenceMax:  time.Duration(cfg.ReferenceMaxSec * float64(time.Second)),
	}, observability.Logger("job"))

	synthesizer, err := synth.NewSynthesizer(store, gateway, cfg.OutputDir(), cfg.ChunkChars(), time.Duration(cfg.ChunkGapMS)*time.Millisecond, metrics, observability.Logger("synth"))
	if err != nil {
		log.Fatal().Err(err).Msg("synthesizer init failed")
	}

	engine := recognition.NewEngine(gateway, metrics, recognition.Config{
		SampleRate: cfg.RecognitionSampleRate,
		QueueSize:  cfg.RecognitionQueueSize,
		JoinGrace:  time.Duration(cfg.RecognitionJoinGrace) * time.Second,
	}, observability.Logger("recognition"))

	api := httpapi.New(cfg, store, prep, runner, synthesizer, engine, gateway, metrics, observability.Logger("http"))
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	engine.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	log.Info().Msg("shutdown complete")
}
