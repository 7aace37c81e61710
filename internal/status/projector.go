// Package status owns the conversation state machine. Every accepted change
// is persisted first and then fanned out to the registered sinks.
package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/services"
	"oto-insights-go/internal/types"
)

const (
	LabelCompleted = "Analysis completed"
	failedPrefix   = "Analysis failed"
)

// Store is the persistence the projector needs.
type Store interface {
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)
	CompareAndSetStatus(ctx context.Context, id string, expect, next types.Status, inner string) (*types.Conversation, error)
	SetInnerStatus(ctx context.Context, id, inner string) (bool, error)
}

// Sink receives status events after they were persisted.
type Sink interface {
	Publish(ctx context.Context, ev types.StatusEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev types.StatusEvent) error

func (f SinkFunc) Publish(ctx context.Context, ev types.StatusEvent) error { return f(ctx, ev) }

var transitions = map[types.Status][]types.Status{
	types.StatusNotStarted: {types.StatusProcessing, types.StatusFailed},
	types.StatusProcessing: {types.StatusCompleted, types.StatusFailed},
}

// Allowed reports whether the pipeline may move a conversation from one
// status to another.
func Allowed(from, to types.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Projector applies status changes and publishes them to its sinks.
type Projector struct {
	store Store
	log   *logger.Logger
	now   func() time.Time

	mu    sync.RWMutex
	sinks []Sink
}

// NewProjector returns a Projector with no sinks.
func NewProjector(store Store, log *logger.Logger) *Projector {
	if log == nil {
		log = logger.Nop()
	}
	return &Projector{store: store, log: log.Component("status"), now: time.Now}
}

// AddSink registers s for every future event.
func (p *Projector) AddSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Begin moves a conversation into PROCESSING with label as its inner status.
// A conversation already processing only gets its label updated.
func (p *Projector) Begin(ctx context.Context, id, label string) error {
	conv, err := p.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	switch conv.Status {
	case types.StatusProcessing:
		return p.Label(ctx, id, label)
	case types.StatusNotStarted:
		return p.move(ctx, conv, types.StatusProcessing, label)
	default:
		return invalid(conv.Status, types.StatusProcessing, id)
	}
}

// Label updates the inner status of a conversation. Terminal conversations
// are left untouched and no event is published.
func (p *Projector) Label(ctx context.Context, id, label string) error {
	changed, err := p.store.SetInnerStatus(ctx, id, label)
	if err != nil {
		return err
	}
	if !changed {
		if _, err := p.store.GetConversation(ctx, id); err != nil {
			return err
		}
		p.log.WithConversation(id).WithField("label", label).Debug("ignoring label on terminal conversation")
		return nil
	}
	conv, err := p.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	p.emit(ctx, conv)
	return nil
}

// Complete moves a processing conversation to COMPLETED. Completing an
// already completed conversation is a no-op.
func (p *Projector) Complete(ctx context.Context, id string) error {
	conv, err := p.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if conv.Status == types.StatusCompleted {
		return nil
	}
	return p.move(ctx, conv, types.StatusCompleted, LabelCompleted)
}

// Fail marks a conversation FAILED with "Analysis failed: <reason>". Failing
// an already failed conversation is a no-op.
func (p *Projector) Fail(ctx context.Context, id, reason string) error {
	label := failedPrefix
	if reason != "" {
		label = failedPrefix + ": " + reason
	}
	// One retry covers a concurrent NOT_STARTED -> PROCESSING flip.
	for attempt := 0; attempt < 2; attempt++ {
		conv, err := p.store.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		if conv.Status == types.StatusFailed {
			return nil
		}
		err = p.move(ctx, conv, types.StatusFailed, label)
		if err == nil || !errors.Is(err, services.ErrInvalidTransition) || conv.Status.Terminal() {
			return err
		}
	}
	return invalid(types.StatusProcessing, types.StatusFailed, id)
}

func (p *Projector) move(ctx context.Context, conv *types.Conversation, next types.Status, label string) error {
	if !Allowed(conv.Status, next) {
		return invalid(conv.Status, next, conv.ID)
	}
	updated, err := p.store.CompareAndSetStatus(ctx, conv.ID, conv.Status, next, label)
	if err != nil {
		return err
	}
	p.log.WithConversation(conv.ID).WithFields(map[string]any{
		"from":         conv.Status,
		"to":           next,
		"inner_status": label,
	}).Info("status changed")
	p.emit(ctx, updated)
	return nil
}

func (p *Projector) emit(ctx context.Context, conv *types.Conversation) {
	ev := types.StatusEvent{
		ConversationID: conv.ID,
		OwnerID:        conv.OwnerID,
		Status:         conv.Status,
		InnerStatus:    conv.InnerStatus,
		At:             p.now().UTC(),
	}
	p.mu.RLock()
	sinks := append([]Sink(nil), p.sinks...)
	p.mu.RUnlock()
	for _, s := range sinks {
		if err := s.Publish(ctx, ev); err != nil {
			p.log.WithConversation(conv.ID).WithError(err).Warn("status sink failed")
		}
	}
}

func invalid(from, to types.Status, id string) error {
	return services.Wrap(services.ErrInvalidTransition, "status", "transition",
		fmt.Sprintf("%s: %s -> %s", id, from, to), nil)
}
