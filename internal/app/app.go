// Package app builds every collaborator from configuration and wires them
// together. Both binaries start here.
package app

import (
	"context"
	"errors"
	"fmt"

	"oto-insights-go/internal/api"
	"oto-insights-go/internal/clip"
	"oto-insights-go/internal/config"
	"oto-insights-go/internal/dataset"
	"oto-insights-go/internal/dispatch"
	"oto-insights-go/internal/enhance"
	"oto-insights-go/internal/events"
	"oto-insights-go/internal/extractor"
	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/media"
	"oto-insights-go/internal/metrics"
	"oto-insights-go/internal/pipeline"
	"oto-insights-go/internal/speech"
	"oto-insights-go/internal/status"
	"oto-insights-go/internal/storage"
	"oto-insights-go/internal/store"
	"oto-insights-go/internal/taskpool"
	"oto-insights-go/internal/transcription"
	"oto-insights-go/internal/trends"
)

type App struct {
	Config     *config.Config
	Log        *logger.Logger
	Store      *store.Store
	Files      *storage.Local
	Metrics    *metrics.Metrics
	Events     *events.Publisher
	Status     *status.Projector
	Hub        *api.Hub
	Pipeline   *pipeline.Pipeline
	Dispatcher *dispatch.Dispatcher
	Trends     *trends.Builder

	closers []func() error
}

// New opens storage and builds the pipeline. Close releases everything New
// opened, also when New fails halfway.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *App, err error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Store, err = store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, a.Store.Close)

	a.Files, err = storage.NewLocal(cfg.Storage.ObjectDir, cfg.Server.PublicBaseURL, cfg.Storage.SigningKey)
	if err != nil {
		return nil, err
	}

	a.Metrics = metrics.New()
	a.Events = events.New(events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Principal: cfg.Kafka.Principal,
	}, a.Metrics, log)
	a.closers = append(a.closers, a.Events.Close)

	a.Status = status.NewProjector(a.Store, log)
	a.Status.AddSink(a.Metrics)
	a.Status.AddSink(a.Events)
	a.Hub = api.NewHub(log)

	ff := media.New(cfg.Voice.FFmpegPath)
	transcriber, err := a.transcriber(ctx, ff)
	if err != nil {
		return nil, err
	}

	analyzer := a.analyzer()
	a.Trends = trends.NewBuilder(a.Store, analyzer, log)

	a.Pipeline, err = pipeline.New(pipeline.Config{
		MaxConversations: cfg.Pipeline.MaxConversations,
		Timeout:          cfg.Pipeline.Timeout.Duration,
		SignedURLTTL:     cfg.Storage.SignedURLTTL.Duration,
	}, pipeline.Deps{
		Store:       a.Store,
		Storage:     a.Files,
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Clips:       clip.NewConstructor(ff),
		Enhancer:    a.enhancer(ff),
		Synthesizer: a.synthesizer(),
		Status:      a.Status,
		Pool:        taskpool.New(cfg.Pipeline.WorkerPoolSize),
		Metrics:     a.Metrics,
		Log:         log,
	})
	if err != nil {
		return nil, err
	}

	a.Dispatcher, err = dispatch.New(a.Pipeline, cfg.Pipeline.LockDir, log)
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"transcription": cfg.Transcription.Backend,
		"mock_llm":      cfg.LLM.UseMock,
		"mock_voice":    cfg.Voice.UseMockVoice,
		"kafka":         a.Events.Enabled(),
	}).Info("application wired")
	return a, nil
}

func (a *App) transcriber(ctx context.Context, ff *media.FFmpeg) (transcription.Transcriber, error) {
	cfg := a.Config.Transcription
	switch cfg.Backend {
	case "fireworks":
		return transcription.NewFireworks(cfg.FireworksURL, cfg.FireworksAPIKey, a.Log), nil
	case "google":
		g, err := transcription.NewGoogle(ctx, cfg.GoogleCredentialsPath, cfg.GoogleLanguageCode, ff, a.Log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	case "mock":
		return transcription.NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", cfg.Backend)
	}
}

func (a *App) analyzer() *extractor.Analyzer {
	cfg := a.Config.LLM
	if cfg.UseMock {
		return extractor.NewAnalyzer(extractor.Mock{}, extractor.HashEmbedder{}, a.Log)
	}
	var embed extractor.Embedder = extractor.HashEmbedder{}
	if cfg.EmbeddingURL != "" {
		embed = extractor.NewEmbeddings(cfg.EmbeddingURL, cfg.APIKey, cfg.EmbeddingModel)
	}
	return extractor.NewAnalyzer(extractor.NewClient(cfg.GatewayURL, cfg.APIKey, cfg.Model, a.Log), embed, a.Log)
}

func (a *App) enhancer(ff *media.FFmpeg) pipeline.Enhancer {
	cfg := a.Config.Voice
	if cfg.UseMockVoice || cfg.EnhanceKey == "" {
		return enhance.NewPassthrough(a.Files, ff)
	}
	return enhance.NewSieve(cfg.EnhanceURL, cfg.EnhanceKey, ff, a.Log)
}

func (a *App) synthesizer() pipeline.Synthesizer {
	cfg := a.Config.Voice
	if cfg.UseMockVoice || cfg.TTSAPIKey == "" {
		return speech.Mock{}
	}
	return speech.NewTTS(cfg.TTSURL, cfg.TTSAPIKey, cfg.TTSModel, cfg.TTSVoice, a.Log)
}

// StartHub runs the websocket hub until ctx ends and subscribes it to status
// events. Only the API server needs it.
func (a *App) StartHub(ctx context.Context) {
	go a.Hub.Run(ctx)
	a.Status.AddSink(a.Hub)
}

// Server builds the HTTP API over the wired components.
func (a *App) Server() *api.Server {
	return api.New(api.Options{
		Store:        a.Store,
		Trends:       a.Store,
		Dispatcher:   a.Dispatcher,
		Stages:       a.Pipeline,
		Files:        a.Files,
		Hub:          a.Hub,
		Metrics:      a.Metrics.Handler(),
		SignedURLTTL: a.Config.Storage.SignedURLTTL.Duration,
		Log:          a.Log,
	})
}

func (a *App) Importer() *dataset.Importer {
	return dataset.NewImporter(a.Store, a.Files, a.Log)
}

// Close waits for background runs and detached clip branches and then
// releases resources in reverse order of acquisition.
func (a *App) Close() error {
	if a.Dispatcher != nil {
		a.Dispatcher.Wait()
	}
	if a.Pipeline != nil {
		a.Pipeline.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
