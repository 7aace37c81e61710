package pipeline

import (
	"bytes"
	"context"
	"path"
	"strings"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/media"
	"oto-insights-go/internal/speech"
	"oto-insights-go/internal/types"
)

const (
	clipPrefix    = "clips"
	commentPrefix = "clip_comments"
)

// uploads remembers every object written during one clip run so a failure
// can remove them all.
type uploads struct {
	storage Storage
	keys    []string
	scratch []string
}

func (u *uploads) put(ctx context.Context, prefix, ext string, data []byte) (string, error) {
	key, err := u.storage.Upload(ctx, prefix, ext, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	u.keys = append(u.keys, key)
	return key, nil
}

// putScratch uploads an intermediate object that is removed once the run ends.
func (u *uploads) putScratch(ctx context.Context, prefix, ext string, data []byte) (string, error) {
	key, err := u.put(ctx, prefix, ext, data)
	if err == nil {
		u.scratch = append(u.scratch, key)
	}
	return key, err
}

func (u *uploads) remove(ctx context.Context, keys []string, log *logger.Logger) {
	for _, key := range keys {
		if err := u.storage.Delete(ctx, key); err != nil {
			log.WithError(err).WithField("key", key).Warn("could not delete clip object")
		}
	}
}

// createClips generates, cuts, cleans and publishes clips for a conversation.
// The new set replaces any earlier one in a single write and a failed run
// leaves no objects behind.
func (p *Pipeline) createClips(ctx context.Context, conv *types.Conversation) (err error) {
	log := p.log.WithConversation(conv.ID).With("stage", string(StageClips))

	captions, err := p.transcript(ctx, StageClips, conv.ID)
	if err != nil {
		return err
	}
	candidates, err := p.analyzer.ClipCandidates(ctx, captions)
	if err != nil {
		return err
	}
	var built []types.Candidate
	if len(candidates) > 0 {
		src, err := p.storage.Open(ctx, conv.FilePath)
		if err != nil {
			return err
		}
		built, err = p.clips.Construct(ctx, src, candidates)
		src.Close()
		if err != nil {
			return err
		}
	} else {
		log.Info("no clip candidates")
	}

	up := &uploads{storage: p.storage}
	defer func() {
		cleanup := context.WithoutCancel(ctx)
		if err != nil {
			up.remove(cleanup, up.keys, log)
			return
		}
		up.remove(cleanup, up.scratch, log)
	}()

	var (
		clips   []types.Clip
		skipped int
	)
	for _, c := range built {
		if len(c.Captions) == 0 {
			skipped++
			log.WithField("title", c.Title).Info("clip candidate has no captions, skipping")
			continue
		}
		cleaned, err := p.cleanCaptions(ctx, c)
		if err != nil {
			return err
		}
		if len(cleaned) == 0 {
			skipped++
			log.WithField("title", c.Title).Info("clip has no captions after cleaning, skipping")
			continue
		}
		audio, rebased, err := p.clips.ConstructWithCaptions(ctx, bytes.NewReader(c.Audio), cleaned)
		if err != nil {
			return err
		}
		clip, err := p.materialise(ctx, conv, c, audio, rebased, up)
		if err != nil {
			return err
		}
		clips = append(clips, clip)
	}

	if err := persistable(ctx, StageClips); err != nil {
		return err
	}
	previous, err := p.store.ReplaceClips(ctx, conv.ID, clips)
	if err != nil {
		return err
	}
	var stale []string
	for _, c := range previous {
		stale = append(stale, c.FilePath)
		if c.CommentFilePath != "" {
			stale = append(stale, c.CommentFilePath)
		}
	}
	up.remove(context.WithoutCancel(ctx), stale, log)

	p.metrics.RecordClips(len(clips), skipped)
	log.WithFields(map[string]any{
		"clips":    len(clips),
		"skipped":  skipped,
		"replaced": len(previous),
	}).Info("clips created")
	return nil
}

// cleanCaptions transcribes a candidate's own audio and asks the analyzer to
// drop fillers, yielding captions on the candidate's timeline.
func (p *Pipeline) cleanCaptions(ctx context.Context, c types.Candidate) ([]types.ClipCaption, error) {
	res, err := p.transcriber.Transcribe(ctx, bytes.NewReader(c.Audio), "clip.wav", media.FormatWAV.MimeType())
	if err != nil {
		return nil, err
	}
	captions := res.Captions()
	if len(captions) == 0 {
		return nil, nil
	}
	return p.analyzer.CleanClip(ctx, captions)
}

func (p *Pipeline) materialise(ctx context.Context, conv *types.Conversation, c types.Candidate,
	audio []byte, captions []types.ClipCaption, up *uploads) (types.Clip, error) {
	prefix := path.Join(clipPrefix, conv.OwnerID)

	wavKey, err := up.putScratch(ctx, prefix, ".wav", audio)
	if err != nil {
		return types.Clip{}, err
	}
	url, err := p.storage.Sign(ctx, wavKey, p.cfg.SignedURLTTL)
	if err != nil {
		return types.Clip{}, err
	}
	enhanced, err := p.enhancer.Enhance(ctx, url, media.FormatOpus)
	if err != nil {
		return types.Clip{}, err
	}
	audioKey, err := up.put(ctx, prefix, ".opus", enhanced)
	if err != nil {
		return types.Clip{}, err
	}

	clip := types.Clip{
		OwnerID:        conv.OwnerID,
		ConversationID: conv.ID,
		FileName:       path.Base(audioKey),
		FilePath:       audioKey,
		MimeType:       media.FormatOpus.MimeType(),
		Title:          c.Title,
		Description:    c.Description,
		Comment:        c.Comment,
		Captions:       captions,
	}
	if strings.TrimSpace(c.Comment) == "" {
		return clip, nil
	}

	voice, err := p.synthesizer.Speak(ctx, c.Comment)
	if err != nil {
		return types.Clip{}, err
	}
	commentKey, err := up.put(ctx, path.Join(commentPrefix, conv.OwnerID), ".opus", voice)
	if err != nil {
		return types.Clip{}, err
	}
	clip.CommentFileName = path.Base(commentKey)
	clip.CommentFilePath = commentKey
	clip.CommentMimeType = speech.MimeType
	return clip, nil
}
