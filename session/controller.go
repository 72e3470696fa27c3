package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"parley/audio"
	"parley/log"
	"parley/realtime"
)

var ErrDeviceAcquisition = errors.New("session: could not acquire audio devices")

const DefaultGreeting = "Hello!"

// Remote is the realtime agent connection.
type Remote interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	SendUserText(text string) error
	UpdateSession(mutate func(*realtime.SessionConfig)) error
	TurnDetectionType() string
	AppendInputAudio(samples []int16) error
	CreateResponse() error
	CancelResponse(trackID string, offset int) error
}

type Recorder interface {
	Begin(ctx context.Context) error
	Record(onFrame func([]int16)) error
	Pause() error
	End() error
	Status() audio.RecorderStatus
}

type Player interface {
	Connect(ctx context.Context) error
	Interrupt() *audio.TrackOffset
	Close() error
}

type TurnMode string

const (
	TurnManual TurnMode = "manual"
	TurnVAD    TurnMode = "vad"
)

func ParseTurnMode(s string) (TurnMode, error) {
	switch TurnMode(s) {
	case TurnManual, "":
		return TurnManual, nil
	case TurnVAD:
		return TurnVAD, nil
	}
	return "", fmt.Errorf("unknown turn mode %q (want manual or vad)", s)
}

type State int

const (
	Idle State = iota
	ManualArmed
	ManualCapturing
	VadArmed
)

func (s State) String() string {
	switch s {
	case ManualArmed:
		return "manual-armed"
	case ManualCapturing:
		return "manual-capturing"
	case VadArmed:
		return "vad-armed"
	}
	return "idle"
}

type CaptureState struct {
	TurnMode      TurnMode
	IsCapturing   bool
	CanPushToTalk bool
}

type Options struct {
	Greeting string
	Model    string
	// Reset runs on disconnect to clear session-scoped views.
	Reset func()
}

// Controller arbitrates turn taking between push-to-talk and server voice
// detection. Every operation holds one lock for its whole sequence.
type Controller struct {
	remote   Remote
	recorder Recorder
	player   Player
	opts     Options

	mu    sync.Mutex
	state State
	mode  TurnMode
}

func NewController(remote Remote, recorder Recorder, player Player, opts Options) *Controller {
	if opts.Greeting == "" {
		opts.Greeting = DefaultGreeting
	}
	mode := TurnManual
	if remote.TurnDetectionType() == realtime.TurnDetectionServerVAD {
		mode = TurnVAD
	}
	return &Controller{
		remote:   remote,
		recorder: recorder,
		player:   player,
		opts:     opts,
		state:    Idle,
		mode:     mode,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) CaptureState() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CaptureState{
		TurnMode:      c.mode,
		IsCapturing:   c.state == ManualCapturing || c.state == VadArmed,
		CanPushToTalk: c.mode == TurnManual,
	}
}

// Connect acquires both audio devices, connects the agent and greets it.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.recorder.Begin(gctx) })
	g.Go(func() error { return c.player.Connect(gctx) })
	if err := g.Wait(); err != nil {
		c.releaseDevices()
		return fmt.Errorf("%w: %w", ErrDeviceAcquisition, err)
	}

	if err := c.remote.Connect(ctx); err != nil {
		c.releaseDevices()
		return fmt.Errorf("connect: %w", err)
	}
	log.SessionStart(c.opts.Model, string(c.mode))

	if err := c.remote.SendUserText(c.opts.Greeting); err != nil {
		log.Warnf("greeting: %v", err)
	}

	if c.remote.TurnDetectionType() == realtime.TurnDetectionServerVAD {
		c.mode = TurnVAD
		if err := c.recorder.Record(c.sendAudio); err != nil {
			log.Warnf("start capture: %v", err)
		}
		c.state = VadArmed
	} else {
		c.mode = TurnManual
		c.state = ManualArmed
	}
	return nil
}

func (c *Controller) releaseDevices() {
	if err := errors.Join(c.recorder.End(), c.player.Close()); err != nil {
		log.Warnf("release devices: %v", err)
	}
}

func (c *Controller) sendAudio(samples []int16) {
	if err := c.remote.AppendInputAudio(samples); err != nil {
		log.Warnf("append audio: %v", err)
	}
}

// ChangeTurnMode switches between push-to-talk and server voice detection.
func (c *Controller) ChangeTurnMode(ctx context.Context, mode TurnMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.remote.UpdateSession(func(s *realtime.SessionConfig) {
		if mode == TurnVAD {
			s.TurnDetection = realtime.ServerVAD()
		} else {
			s.TurnDetection = nil
		}
	})
	if err != nil {
		return fmt.Errorf("update turn detection: %w", err)
	}
	c.mode = mode
	log.TurnMode(string(mode))

	if mode == TurnManual && c.recorder.Status() == audio.StatusRecording {
		if err := c.recorder.Pause(); err != nil {
			return fmt.Errorf("pause capture: %w", err)
		}
	}
	if c.state == Idle || !c.remote.IsConnected() {
		return nil
	}
	if mode == TurnVAD {
		if c.recorder.Status() != audio.StatusRecording {
			if err := c.recorder.Record(c.sendAudio); err != nil {
				return fmt.Errorf("start capture: %w", err)
			}
		}
		c.state = VadArmed
	} else {
		c.state = ManualArmed
	}
	return nil
}

// interruptLocked stops playback and cancels the response that was being
// heard. A cancel for an item the agent no longer has is ignored.
func (c *Controller) interruptLocked() error {
	off := c.player.Interrupt()
	if off == nil {
		return nil
	}
	log.Cancel(off.TrackID, off.Offset)
	err := c.remote.CancelResponse(off.TrackID, off.Offset)
	if errors.Is(err, realtime.ErrItemNotFound) {
		log.Infof("cancel %s: item already gone", off.TrackID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel response: %w", err)
	}
	return nil
}

// StartManualCapture begins a push-to-talk turn, cutting off the agent if
// it is speaking.
func (c *Controller) StartManualCapture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.state != ManualArmed {
		return nil
	}
	if err := c.interruptLocked(); err != nil {
		return err
	}
	if err := c.recorder.Record(c.sendAudio); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	c.state = ManualCapturing
	return nil
}

// StopManualCapture ends a push-to-talk turn and asks for a response.
func (c *Controller) StopManualCapture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.state != ManualCapturing {
		return nil
	}
	if err := c.recorder.Pause(); err != nil {
		return fmt.Errorf("pause capture: %w", err)
	}
	c.state = ManualArmed
	if err := c.remote.CreateResponse(); err != nil {
		return fmt.Errorf("create response: %w", err)
	}
	return nil
}

// HandleInterruption reacts to the user talking over the agent.
func (c *Controller) HandleInterruption(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.state == Idle {
		return nil
	}
	return c.interruptLocked()
}

// Disconnect tears everything down. Every release step runs even when an
// earlier one fails. Reset runs last, once nothing can feed the views.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return nil
	}
	c.state = Idle

	// the recorder drains its queue to the agent before the socket closes
	err := errors.Join(
		c.recorder.End(),
		c.remote.Disconnect(),
		c.player.Close(),
	)
	if c.opts.Reset != nil {
		c.opts.Reset()
	}
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}
