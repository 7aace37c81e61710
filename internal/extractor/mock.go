package extractor

import (
	"context"
	"encoding/json"
	"fmt"

	"oto-insights-go/internal/timecode"
	"oto-insights-go/internal/types"
)

// Mock answers every task with a canned, valid response. Clean-clip requests
// echo the captions they were given so clip timelines stay consistent.
type Mock struct{}

var mockResponses = map[string]string{
	TaskSummary: `{"summary": "Two friends catch up about a recent trip to Kyoto and what made it memorable."}`,
	TaskHighlights: `{"highlights": [
		{"summary": "Opening question", "highlight": "How was Kyoto?", "timecode_start_at": "00:00:00.400", "timecode_end_at": "00:00:01.500", "favorite": false},
		{"summary": "Verdict", "highlight": "The best trip this year.", "timecode_start_at": "00:00:02.100", "timecode_end_at": "00:00:04.000", "favorite": true}]}`,
	TaskInsights: `{"suggestions": ["Ask a follow-up question about the trip."], "boring_score": 0.2, "density_score": 0.5, "clarity_score": 0.8, "engagement_score": 0.7, "interesting_score": 0.6}`,
	TaskBreakdown: `{"metadata": {"duration": "00:00:04", "language": "en", "situation": "casual chat", "place": "", "time": "", "location": "", "participants": ["speaker_0", "speaker_1"]},
		"sentiment": {"positive": 0.8, "neutral": 0.2, "negative": 0.0},
		"keywords": [{"keyword": "Kyoto", "importance_score": 0.9}, {"keyword": "trip", "importance_score": 0.6}]}`,
	TaskEditProfile: `{"name": "", "age": 0, "nationality": "", "first_language": "English", "second_languages": "", "interests": "travel", "preferred_topics": "Kyoto"}`,
	TaskTopics: `{"topics": [{"topic": "A trip to Kyoto was the highlight of the year.", "words": ["Kyoto", "trip", "travel"],
		"related_conversations": [{"timecode": "00:00:02.100-00:00:04.000", "speaker": "speaker_1", "caption": "Honestly the best trip this year."}], "sentiment": 0.8}]}`,
	TaskTrends: `{"trends": [{"title": "Travel in Japan", "description": "People share memorable trips to Japanese cities.", "volume": 2,
		"overall_positive_sentiment": 0.8, "overall_negative_sentiment": 0.1, "cluster_id": 0}],
		"micro_trends": [{"title": "Kyoto trips", "description": "Short trips to Kyoto come up often.", "volume": 2,
		"overall_positive_sentiment": 0.9, "overall_negative_sentiment": 0.0}]}`,
	TaskClipDraft:  "Clip 1: 00:00:00.400-00:00:04.000, the Kyoto verdict.",
	TaskClipRefine: "Clip 1: 00:00:02.100-00:00:04.000 then 00:00:00.400-00:00:01.500.",
	TaskClipStructure: `{"clips": [{"title": "Best trip of the year", "description": "A quick verdict on Kyoto.", "comment": "Listen to what they said about Kyoto.",
		"captions": [
			{"timecode_start": "00:00:00.400", "timecode_end": "00:00:01.500", "speaker": "speaker_0", "caption": "So how was Kyoto?"},
			{"timecode_start": "00:00:02.100", "timecode_end": "00:00:04.000", "speaker": "speaker_1", "caption": "Honestly the best trip this year."}]}]}`,
}

func (Mock) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Task == TaskCleanClip {
		return echoCaptions(req)
	}
	resp, ok := mockResponses[req.Task]
	if !ok {
		return "", fmt.Errorf("mock llm: unknown task %q", req.Task)
	}
	return resp, nil
}

// echoCaptions returns the transcript message of req as clip captions.
func echoCaptions(req Request) (string, error) {
	var captions []types.Caption
	for _, m := range req.Messages {
		if m.Role == "user" && json.Unmarshal([]byte(m.Content), &captions) == nil {
			break
		}
	}
	out := struct {
		Captions []types.ClipCaption `json:"captions"`
	}{Captions: make([]types.ClipCaption, 0, len(captions))}
	for _, c := range captions {
		start, end, err := timecode.ParseRange(c.Timecode)
		if err != nil {
			return "", err
		}
		out.Captions = append(out.Captions, types.ClipCaption{
			TimecodeStart: timecode.Format(start),
			TimecodeEnd:   timecode.Format(end),
			Speaker:       c.Speaker,
			Caption:       c.Caption,
		})
	}
	data, err := json.Marshal(out)
	return string(data), err
}
