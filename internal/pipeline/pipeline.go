// Package pipeline drives a conversation through transcription, analysis,
// point accounting, topic extraction and clip generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/services"
	"oto-insights-go/internal/store"
	"oto-insights-go/internal/taskpool"
	"oto-insights-go/internal/transcription"
	"oto-insights-go/internal/types"
)

const (
	defaultTimeout = 20 * time.Minute
	// failTimeout bounds the FAILED write, which runs after the budget may
	// already be gone.
	failTimeout = 30 * time.Second
)

// Config bounds admission, the wall-clock budget of a run and the lifetime of
// signed URLs handed to the enhancer.
type Config struct {
	MaxConversations int
	Timeout          time.Duration
	SignedURLTTL     time.Duration
}

// Deps are the collaborators a Pipeline is wired with.
type Deps struct {
	Store       Store
	Storage     Storage
	Transcriber transcription.Transcriber
	Analyzer    Analyzer
	Clips       ClipBuilder
	Enhancer    Enhancer
	Synthesizer Synthesizer
	Status      StatusProjector
	Pool        *taskpool.Pool
	Metrics     Recorder
	Log         *logger.Logger
}

// Pipeline runs conversations through the stage graph. It is safe for
// concurrent use by multiple runs.
type Pipeline struct {
	cfg Config

	store       Store
	storage     Storage
	transcriber transcription.Transcriber
	analyzer    Analyzer
	clips       ClipBuilder
	enhancer    Enhancer
	synthesizer Synthesizer
	status      StatusProjector
	pool        *taskpool.Pool
	metrics     Recorder
	log         *logger.Logger
	now         func() time.Time

	// branches holds clip branches still running after their Run returned.
	mu       sync.Mutex
	branches map[string]chan struct{}
	wg       sync.WaitGroup
}

// New validates d and returns a Pipeline. Store, storage and every provider
// are required; the pool, metrics and logger fall back to defaults.
func New(cfg Config, d Deps) (*Pipeline, error) {
	var missing []string
	for name, ok := range map[string]bool{
		"store":       d.Store != nil,
		"storage":     d.Storage != nil,
		"transcriber": d.Transcriber != nil,
		"analyzer":    d.Analyzer != nil,
		"clips":       d.Clips != nil,
		"enhancer":    d.Enhancer != nil,
		"synthesizer": d.Synthesizer != nil,
		"status":      d.Status != nil,
	} {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", fmt.Sprintf("missing %v", missing), nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = time.Hour
	}
	if d.Pool == nil {
		d.Pool = taskpool.New(8)
	}
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Pipeline{
		cfg:         cfg,
		store:       d.Store,
		storage:     d.Storage,
		transcriber: d.Transcriber,
		analyzer:    d.Analyzer,
		clips:       d.Clips,
		enhancer:    d.Enhancer,
		synthesizer: d.Synthesizer,
		status:      d.Status,
		pool:        d.Pool,
		metrics:     d.Metrics,
		log:         d.Log.Component("pipeline"),
		now:         time.Now,
		branches:    make(map[string]chan struct{}),
	}, nil
}

// mainPath lists the stage groups that follow transcription. Stages inside a
// group run concurrently and the group is a fail-fast barrier.
var mainPath = [][]Stage{
	{StageEmptyAnalysis},
	{StageSummary, StageHighlights, StageInsights},
	{StageBreakdown, StageEditProfile},
	{StageGivePoints},
	{StageComplete},
}

// Run processes one conversation end to end and returns its final status.
//
// Admission is checked before anything runs; a rejected conversation is left
// NOT_STARTED. The clip branch waits for the transcript, runs beside the
// analysis stages and is joined last; its failure never fails the
// conversation, and main-path failures do not cancel it. A critical stage
// failure or the budget running out marks the conversation FAILED.
func (p *Pipeline) Run(ctx context.Context, id string) (types.Status, error) {
	conv, err := p.store.GetConversation(ctx, id)
	if err != nil {
		return "", err
	}
	log := p.log.WithConversation(id)
	if conv.Status.Terminal() {
		return conv.Status, services.Wrap(services.ErrInvalidTransition, "pipeline", "run",
			fmt.Sprintf("%s is already %s", id, conv.Status), nil)
	}
	if err := p.admit(ctx); err != nil {
		log.WithError(err).Warn("conversation not admitted")
		return conv.Status, err
	}

	start := p.now()
	deadline := start.Add(p.cfg.Timeout)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	p.metrics.RecordRunStart()
	outcome := string(types.StatusFailed)
	defer func() { p.metrics.RecordRunEnd(outcome, p.now().Sub(start).Seconds()) }()
	log.WithField("deadline", deadline.Format(time.RFC3339)).Info("pipeline started")

	transcribed := p.submit(runCtx, StageTranscribe, conv)
	clipCtx, clipCancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	clips := p.pool.SubmitAfter(clipCtx, string(StageClips), transcribed, func(ctx context.Context) error {
		return p.exec(ctx, StageClips, conv).Err
	})

	if err := p.join(runCtx, runCtx, transcribed); err != nil {
		st, err := p.fail(ctx, conv, err)
		p.detach(conv.ID, clips, clipCancel, log)
		return st, err
	}
	for _, group := range mainPath {
		if err := p.runGroup(runCtx, conv, group); err != nil {
			st, err := p.fail(ctx, conv, err)
			p.detach(conv.ID, clips, clipCancel, log)
			return st, err
		}
	}
	outcome = string(types.StatusCompleted)

	if res := p.exec(runCtx, StageExtractTopic, conv); res.Err != nil {
		log.WithError(res.Err).Warn("topic extraction failed")
	}
	err = clips.Err()
	clipCancel()
	if err != nil {
		log.WithError(err).Warn("clip generation failed")
	}
	log.WithField("duration", p.now().Sub(start).String()).Info("pipeline completed")
	return types.StatusCompleted, nil
}

// RunStage runs a single stage against a conversation, outside of Run.
//
// Replaying a critical stage resumes processing: a NOT_STARTED conversation
// is moved to PROCESSING first, so a reset conversation can be carried to
// COMPLETED stage by stage. A FAILED conversation has to be reset before its
// critical stages are replayed.
func (p *Pipeline) RunStage(ctx context.Context, id string, stage Stage) (StageResult, error) {
	if p.stageFunc(stage) == nil {
		_, err := ParseStage(string(stage))
		return StageResult{Stage: stage}, err
	}
	conv, err := p.store.GetConversation(ctx, id)
	if err != nil {
		return StageResult{Stage: stage, Critical: stage.Critical()}, err
	}
	if stage.Critical() && stage != StageMarkFailed {
		switch conv.Status {
		case types.StatusFailed:
			err := services.Wrap(services.ErrInvalidTransition, "pipeline", "run stage",
				fmt.Sprintf("%s is failed; reset it before replaying %s", id, stage), nil)
			return StageResult{Stage: stage, Critical: true}, err
		case types.StatusNotStarted:
			if stage != StageTranscribe {
				if err := p.status.Begin(ctx, id, labelResuming+string(stage)); err != nil {
					return StageResult{Stage: stage, Critical: true}, err
				}
				conv.Status = types.StatusProcessing
			}
		}
	}
	res := p.exec(ctx, stage, conv)
	return res, res.Err
}

// BackfillTopics extracts topics for every completed conversation that has
// none yet. It returns how many conversations were processed successfully.
func (p *Pipeline) BackfillTopics(ctx context.Context) (int, error) {
	convs, err := p.store.ListConversations(ctx, store.ConversationFilter{Status: types.StatusCompleted})
	if err != nil {
		return 0, err
	}
	var (
		done int
		errs []error
	)
	for i := range convs {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		res := p.exec(ctx, StageExtractTopic, &convs[i])
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", convs[i].ID, res.Err))
			continue
		}
		done++
	}
	p.log.WithField("conversations", len(convs)).WithField("succeeded", done).Info("topic backfill finished")
	return done, errors.Join(errs...)
}

func (p *Pipeline) admit(ctx context.Context) error {
	n, err := p.store.CountConversations(ctx)
	if err != nil {
		return err
	}
	if n > p.cfg.MaxConversations {
		return services.Wrap(services.ErrAdmissionRejected, "pipeline", "admit",
			fmt.Sprintf("%d conversations exceed the limit of %d", n, p.cfg.MaxConversations), nil)
	}
	return nil
}

func (p *Pipeline) exec(ctx context.Context, stage Stage, conv *types.Conversation) StageResult {
	log := p.log.WithConversation(conv.ID).With("stage", string(stage))
	start := p.now()
	log.Debug("stage started")

	err := p.stageFunc(stage)(ctx, conv)
	res := StageResult{Stage: stage, Critical: stage.Critical(), Err: err, Duration: p.now().Sub(start)}
	p.metrics.RecordStage(string(stage), res.Critical, services.Kind(err), res.Duration.Seconds())

	if err != nil {
		log.WithError(err).WithField("kind", services.Kind(err)).Warn("stage failed")
	} else {
		log.WithField("duration", res.Duration.String()).Info("stage finished")
	}
	return res
}

func (p *Pipeline) submit(ctx context.Context, stage Stage, conv *types.Conversation) *taskpool.Future {
	return p.pool.Submit(ctx, string(stage), func(ctx context.Context) error {
		return p.exec(ctx, stage, conv).Err
	})
}

func (p *Pipeline) runGroup(ctx context.Context, conv *types.Conversation, stages []Stage) error {
	groupCtx, cancel := context.WithCancel(ctx)
	// Returning cancels the siblings of a failed stage.
	defer cancel()
	futures := make([]*taskpool.Future, 0, len(stages))
	for _, s := range stages {
		futures = append(futures, p.submit(groupCtx, s, conv))
	}
	return p.join(ctx, groupCtx, futures...)
}

// join waits on a barrier. When runCtx ends first the error names the first
// unfinished stage.
func (p *Pipeline) join(runCtx, groupCtx context.Context, futures ...*taskpool.Future) error {
	err := taskpool.Join(groupCtx, futures...)
	if err == nil {
		return nil
	}
	var te *taskpool.TaskError
	if errors.As(err, &te) {
		if runCtx.Err() != nil && errors.Is(te.Err, context.DeadlineExceeded) {
			return &taskpool.TaskError{Task: te.Task, Err: p.timeout(te.Task, te.Err)}
		}
		return err
	}
	name := "pipeline"
	if f := unfinished(futures); f != nil {
		name = f.Name()
	}
	return &taskpool.TaskError{Task: name, Err: p.timeout(name, err)}
}

// unfinished returns the first future still running, or else the first one
// that failed.
func unfinished(futures []*taskpool.Future) *taskpool.Future {
	var failed *taskpool.Future
	for _, f := range futures {
		select {
		case <-f.Done():
			if failed == nil && f.Err() != nil {
				failed = f
			}
		default:
			return f
		}
	}
	return failed
}

func (p *Pipeline) timeout(stage string, err error) error {
	return services.Wrap(services.ErrTimeout, stage, "run",
		fmt.Sprintf("pipeline budget of %s exhausted", p.cfg.Timeout), err)
}

// fail marks the conversation FAILED and reports the failing stage.
func (p *Pipeline) fail(ctx context.Context, conv *types.Conversation, err error) (types.Status, error) {
	stage := "pipeline"
	var te *taskpool.TaskError
	if errors.As(err, &te) {
		stage, err = te.Task, te.Err
	}

	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()
	if ferr := p.status.Fail(failCtx, conv.ID, stage+": "+err.Error()); ferr != nil {
		p.log.WithConversation(conv.ID).WithError(ferr).Error("could not mark conversation failed")
	}
	p.log.WithConversation(conv.ID).WithField("stage", stage).WithField("kind", services.Kind(err)).
		Error("pipeline failed")
	return types.StatusFailed, fmt.Errorf("stage %s: %w", stage, err)
}

// detach lets the clip branch finish on its own after the main path failed.
// The branch stays visible through Detached and Wait until it ends.
func (p *Pipeline) detach(id string, clips *taskpool.Future, cancel context.CancelFunc, log *logger.Logger) {
	done := make(chan struct{})
	p.mu.Lock()
	p.branches[id] = done
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		if err := clips.Err(); err != nil {
			log.WithError(err).Warn("clip generation failed")
		}
		p.mu.Lock()
		if p.branches[id] == done {
			delete(p.branches, id)
		}
		p.mu.Unlock()
		close(done)
	}()
}

// Detached returns a channel closed once the clip branch left behind by the
// last failed Run of id ends, or nil when none is running.
func (p *Pipeline) Detached(id string) <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if done, ok := p.branches[id]; ok {
		return done
	}
	return nil
}

// Wait blocks until every detached clip branch has ended.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
