package config

import "time"

const (
	defaultPort             = "8080"
	defaultMaxConversations = 1000
	defaultPipelineTimeout  = 20 * time.Minute
	defaultWorkerPoolSize   = 8
	defaultSignedURLTTL     = time.Hour
)

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Environment: "local",
		LogLevel:    "info",
		Server: Server{
			Port:          defaultPort,
			PublicBaseURL: "http://localhost:" + defaultPort,
		},
		Pipeline: Pipeline{
			MaxConversations: defaultMaxConversations,
			Timeout:          Duration{defaultPipelineTimeout},
			WorkerPoolSize:   defaultWorkerPoolSize,
			LockDir:          "data/locks",
		},
		Storage: Storage{
			DatabasePath: "data/oto.db",
			ObjectDir:    "data/objects",
			SignedURLTTL: Duration{defaultSignedURLTTL},
		},
		Transcription: Transcription{
			Backend:            "fireworks",
			FireworksURL:       "https://audio-prod.us-virginia-1.direct.fireworks.ai/v1/audio/transcriptions",
			GoogleLanguageCode: "en-US",
		},
		LLM: LLM{
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
		},
		Voice: Voice{
			TTSURL:     "https://api.openai.com/v1/audio/speech",
			TTSModel:   "gpt-4o-mini-tts",
			TTSVoice:   "nova",
			EnhanceURL: "https://mango.sievedata.com/v2",
			FFmpegPath: "ffmpeg",
		},
		Kafka: Kafka{
			Topic:     "oto.conversation.status",
			Principal: "oto-insights-go",
		},
	}
}
