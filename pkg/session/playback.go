package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrEmptyResource = errors.New("playback resource is empty")
	ErrSuperseded    = errors.New("playback superseded before it started")
	ErrNoPlayer      = errors.New("no audio player configured")
	ErrClosed        = errors.New("session closed")
)

// PlaybackState is the state of the coordinator's single handle.
type PlaybackState int

const (
	StateIdle PlaybackState = iota
	StateLoading
	StatePlaying
)

func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("PlaybackState(%d)", int(s))
	}
}

// Player creates audio handles for resource locators.
type Player interface {
	Load(ctx context.Context, resource string) (Handle, error)
}

// Handle is one playing clip. Stop must be idempotent and must not block on the coordinator.
// Done is closed when the clip ends on its own or after Stop.
//
// The ctx given to Start (and to Player.Load) bounds only loading and starting. Once Start
// returns nil the clip plays until it ends or Stop is called; implementations must not tie
// playback to that ctx, e.g. with exec.CommandContext.
type Handle interface {
	Start(ctx context.Context) error
	Stop()
	Done() <-chan struct{}
}

// Coordinator owns at most one Handle and keeps the store's playing flag in step with it.
//
// Transitions happen under mu. Loading and starting a handle happen outside the lock; the
// generation counter tells a finished start whether it is still the current request.
type Coordinator struct {
	player Player
	store  *MessageStore
	logger zerolog.Logger

	mu      sync.Mutex
	state   PlaybackState
	gen     uint64
	turnID  int64
	handle  Handle
	unwatch chan struct{}
	closed  bool

	ended chan uint64
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewCoordinator starts the coordinator's run loop. Call Close to stop it.
func NewCoordinator(player Player, store *MessageStore, logger zerolog.Logger) *Coordinator {
	c := &Coordinator{
		player: player,
		store:  store,
		logger: logger,
		ended:  make(chan uint64),
		quit:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// Play stops whatever is playing and starts resource for turnID. ctx bounds the start only.
// Start failures are logged and returned; the turn is never flagged in that case.
func (c *Coordinator) Play(ctx context.Context, turnID int64, resource string) error {
	if strings.TrimSpace(resource) == "" {
		return ErrEmptyResource
	}
	if c.player == nil {
		return ErrNoPlayer
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.teardownLocked()
	gen := c.gen
	c.state = StateLoading
	c.turnID = turnID
	c.mu.Unlock()

	handle, err := c.player.Load(ctx, resource)
	if err == nil {
		if err = handle.Start(ctx); err != nil {
			handle.Stop()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		if err == nil {
			handle.Stop()
		}
		return ErrSuperseded
	}
	if err != nil {
		c.state = StateIdle
		c.turnID = 0
		c.logger.Warn().Err(err).Int64("turn_id", turnID).Str("resource", resource).Msg("playback failed to start")
		return fmt.Errorf("start playback: %w", err)
	}

	c.handle = handle
	c.state = StatePlaying
	c.unwatch = make(chan struct{})
	c.store.SetPlaying(turnID)
	go c.watch(gen, handle, c.unwatch)

	c.logger.Debug().Int64("turn_id", turnID).Msg("playback started")
	return nil
}

// Pause stops the current handle, if any.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

// State returns the current state and the turn it concerns (0 when idle).
func (c *Coordinator) State() (PlaybackState, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.turnID
}

// Close stops playback and the run loop. Later Play calls return ErrClosed.
func (c *Coordinator) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.teardownLocked()
		c.closed = true
		c.mu.Unlock()

		close(c.quit)
		c.wg.Wait()
	})
}

// teardownLocked returns to Idle and invalidates any in-flight start.
func (c *Coordinator) teardownLocked() {
	c.gen++
	if c.state == StateIdle {
		return
	}
	if c.handle != nil {
		c.handle.Stop()
		c.handle = nil
	}
	if c.unwatch != nil {
		close(c.unwatch)
		c.unwatch = nil
	}
	if c.state == StatePlaying {
		c.store.ClearPlaying()
	}
	c.state = StateIdle
	c.turnID = 0
}

// watch forwards the natural end of a handle to the run loop.
func (c *Coordinator) watch(gen uint64, handle Handle, unwatch <-chan struct{}) {
	select {
	case <-handle.Done():
	case <-unwatch:
		return
	case <-c.quit:
		return
	}
	select {
	case c.ended <- gen:
	case <-unwatch:
	case <-c.quit:
	}
}

func (c *Coordinator) run() {
	defer c.wg.Done()
	for {
		select {
		case gen := <-c.ended:
			c.finish(gen)
		case <-c.quit:
			return
		}
	}
}

func (c *Coordinator) finish(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != StatePlaying {
		return
	}
	c.logger.Debug().Int64("turn_id", c.turnID).Msg("playback finished")
	c.teardownLocked()
}
