package transcription

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/services"
)

// Normalizer converts arbitrary audio to PCM WAV.
type Normalizer interface {
	ToWAV(ctx context.Context, src io.Reader) ([]byte, error)
}

// Google transcribes through Cloud Speech-to-Text long-running recognition.
// Audio is sent inline, which limits requests to 10 MB of WAV.
type Google struct {
	client       *speech.Client
	norm         Normalizer
	languageCode string
	log          *logger.Logger
}

// NewGoogle dials the Speech API. credentialsPath may be empty to use
// application default credentials.
func NewGoogle(ctx context.Context, credentialsPath, languageCode string, norm Normalizer, log *logger.Logger) (*Google, error) {
	if log == nil {
		log = logger.Nop()
	}
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, services.Provider("google-speech", "dial", err)
	}
	if languageCode == "" {
		languageCode = "en-US"
	}
	return &Google{
		client:       client,
		norm:         norm,
		languageCode: languageCode,
		log:          log.Component("transcription").With("backend", "google"),
	}, nil
}

func (g *Google) Close() error {
	return g.client.Close()
}

func (g *Google) Transcribe(ctx context.Context, audio io.Reader, name, mimeType string) (Result, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return Result{}, fmt.Errorf("read audio: %w", err)
	}
	if mimeType != "audio/wav" && mimeType != "audio/x-wav" && g.norm != nil {
		if data, err = g.norm.ToWAV(ctx, bytes.NewReader(data)); err != nil {
			return Result{}, err
		}
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:          g.languageCode,
			EnableWordTimeOffsets: true,
			DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
				EnableSpeakerDiarization: true,
				MinSpeakerCount:          1,
				MaxSpeakerCount:          6,
			},
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	}

	op, err := g.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return Result{}, services.Provider("google-speech", "recognize", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return Result{}, services.Provider("google-speech", "wait", err)
	}

	res := googleResult(resp)
	g.log.WithField("file", name).WithField("words", len(res.Words)).Info("transcription completed")
	return res, nil
}

// googleResult flattens recognition results. With diarization enabled the last
// result repeats every word with a speaker tag, so it replaces the collected
// words and does not count towards active time.
func googleResult(resp *speechpb.LongRunningRecognizeResponse) Result {
	var res Result
	results := resp.GetResults()
	for i, r := range results {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		words := alts[0].GetWords()
		if len(words) == 0 {
			continue
		}
		converted := make([]Word, 0, len(words))
		for _, w := range words {
			converted = append(converted, Word{
				Text:    w.GetWord(),
				Start:   w.GetStartTime().AsDuration().Seconds(),
				End:     w.GetEndTime().AsDuration().Seconds(),
				Speaker: speakerLabel(w.GetSpeakerTag()),
			})
		}
		if i == len(results)-1 && i > 0 && words[0].GetSpeakerTag() > 0 {
			res.Words = converted
			continue
		}
		res.ActiveSeconds += converted[len(converted)-1].End - converted[0].Start
		res.Words = append(res.Words, converted...)
	}
	return res
}

func speakerLabel(tag int32) string {
	if tag <= 0 {
		return ""
	}
	return "speaker_" + strconv.Itoa(int(tag))
}
