// Package dispatch makes sure at most one pipeline runs per conversation,
// both inside this process and across processes sharing a lock directory.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/types"
)

// ErrAlreadyRunning is returned when a conversation is already being processed.
var ErrAlreadyRunning = errors.New("conversation is already being processed")

// Runner runs the pipeline for one conversation.
type Runner interface {
	Run(ctx context.Context, id string) (types.Status, error)
}

// Detacher is implemented by runners that can leave work behind after Run
// returns. The claim on id is kept until the returned channel is closed.
type Detacher interface {
	Detached(id string) <-chan struct{}
}

// Dispatcher claims conversations before handing them to a Runner.
type Dispatcher struct {
	runner  Runner
	lockDir string
	log     *logger.Logger

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// New returns a Dispatcher that keeps its lock files under lockDir.
func New(runner Runner, lockDir string, log *logger.Logger) (*Dispatcher, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &Dispatcher{
		runner:  runner,
		lockDir: lockDir,
		log:     log.Component("dispatch"),
		active:  make(map[string]struct{}),
	}, nil
}

// acquire claims id in this process and on disk. The returned function
// releases both.
func (d *Dispatcher) acquire(id string) (func(), error) {
	if id == "" || filepath.Base(id) != id {
		return nil, fmt.Errorf("invalid conversation id %q", id)
	}

	d.mu.Lock()
	if _, busy := d.active[id]; busy {
		d.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	d.active[id] = struct{}{}
	d.mu.Unlock()

	forget := func() {
		d.mu.Lock()
		delete(d.active, id)
		d.mu.Unlock()
	}

	lock := flock.New(filepath.Join(d.lockDir, id+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		forget()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		forget()
		return nil, ErrAlreadyRunning
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			d.log.WithConversation(id).WithError(err).Warn("failed to release conversation lock")
		}
		forget()
	}, nil
}

// Run processes id in the foreground. Work the runner left behind keeps the
// claim after Run returns; Wait covers it.
func (d *Dispatcher) Run(ctx context.Context, id string) (types.Status, error) {
	release, err := d.acquire(id)
	if err != nil {
		return "", err
	}
	st, err := d.runner.Run(ctx, id)
	d.releaseAfterRun(id, release)
	return st, err
}

// releaseAfterRun releases the claim now, or once the runner's leftover work
// for id has ended.
func (d *Dispatcher) releaseAfterRun(id string, release func()) {
	det, ok := d.runner.(Detacher)
	if !ok {
		release()
		return
	}
	done := det.Detached(id)
	if done == nil {
		release()
		return
	}
	d.log.WithConversation(id).Debug("holding claim until detached work ends")
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		<-done
		release()
	}()
}

// Exclusive runs fn while holding the claim on id. Single stage replays use it
// so they never overlap a full run.
func (d *Dispatcher) Exclusive(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	release, err := d.acquire(id)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Trigger starts processing id in the background and returns once the claim
// is taken. The run is detached from ctx's cancellation.
func (d *Dispatcher) Trigger(ctx context.Context, id string) error {
	release, err := d.acquire(id)
	if err != nil {
		return err
	}
	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		log := d.log.WithConversation(id)
		st, err := d.runner.Run(runCtx, id)
		d.releaseAfterRun(id, release)
		if err != nil {
			log.WithError(err).WithField("status", st).Warn("background run finished with error")
			return
		}
		log.WithField("status", st).Info("background run finished")
	}()
	return nil
}

// Active lists conversations currently claimed by this process.
func (d *Dispatcher) Active() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.active))
	for id := range d.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Wait blocks until every background run and every claim held for detached
// work has been released.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
