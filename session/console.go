package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"parley/audio"
	"parley/conversation"
	"parley/eventlog"
	"parley/log"
	"parley/realtime"
)

// Sink abstracts the display layer. Calls arrive from several goroutines
// and must not block.
type Sink interface {
	Events(events []eventlog.Event)
	Items(items []conversation.Item)
	Memory(entries []Entry)
	Capture(state CaptureState)
	Error(err error)
}

type ConsoleConfig struct {
	Realtime     realtime.Config
	Instructions string
	Greeting     string
	Audio        audio.Context
	Device       *audio.DeviceInfo
	Decoder      conversation.Decoder
	Sink         Sink
}

// Console wires the agent connection, the audio devices and the views
// into one conversation.
type Console struct {
	Client     *realtime.Client
	Controller *Controller
	Recorder   *audio.Recorder
	Player     *audio.StreamPlayer
	Events     *eventlog.Log
	Reconciler *conversation.Reconciler
	Memory     *Memory

	sink Sink

	mu      sync.Mutex
	started time.Time
}

func NewConsole(cfg ConsoleConfig) (*Console, error) {
	sink := cfg.Sink
	if sink == nil {
		sink = nopSink{}
	}
	rate := cfg.Realtime.SampleRate
	if rate == 0 {
		rate = audio.DefaultSampleRate
		cfg.Realtime.SampleRate = rate
	}

	c := &Console{
		Recorder: audio.NewRecorder(cfg.Audio, cfg.Device, rate),
		Player:   audio.NewStreamPlayer(cfg.Audio, rate),
		Events:   eventlog.New(),
		Memory:   NewMemory(sink.Memory),
		sink:     sink,
	}

	sess := &cfg.Realtime.Session
	sess.Instructions = cfg.Instructions
	if sess.InputAudioTranscription == nil {
		sess.InputAudioTranscription = &realtime.InputAudioTranscription{Model: "whisper-1"}
	}

	c.Client = realtime.NewClient(cfg.Realtime, realtime.Handlers{
		RealtimeEvent: func(ev eventlog.Event) {
			sink.Events(c.Events.Append(ev))
		},
		Error: func(err error) {
			log.Errorf("realtime: %v", err)
			sink.Error(err)
		},
		// off the read goroutine: Disconnect holds the controller lock while
		// it waits for that goroutine to exit
		ConversationInterrupted: func() {
			go func() {
				if err := c.Controller.HandleInterruption(context.Background()); err != nil {
					log.Warnf("interruption: %v", err)
				}
			}()
		},
		ConversationUpdated: func(item conversation.Item, delta *conversation.Delta) {
			c.Reconciler.OnUpdate(context.Background(), item, delta)
		},
	})
	if err := c.Client.AddTool(MemoryTool, c.Memory.Handle); err != nil {
		return nil, err
	}

	c.Reconciler = conversation.New(conversation.Config{
		Provider:   c.Client,
		Player:     c.Player,
		Decoder:    cfg.Decoder,
		SampleRate: rate,
		OnPublish:  sink.Items,
		OnComplete: func(it conversation.Item) {
			log.Transcript(it.Speaker(), it.DisplayText())
		},
	})

	c.Controller = NewController(c.Client, c.Recorder, c.Player, Options{
		Greeting: cfg.Greeting,
		Model:    cfg.Realtime.Model,
		Reset:    c.reset,
	})
	return c, nil
}

// reset runs inside Controller.Disconnect.
func (c *Console) reset() {
	log.SessionEnd(len(c.Reconciler.Items()), c.Events.Len())
	c.Events.Clear()
	c.Reconciler.Reset()
	c.Memory.Clear()
	c.sink.Events(nil)
	c.sink.Items(nil)
}

func (c *Console) Connect(ctx context.Context) error {
	c.Events.Clear()
	c.Reconciler.Reset()
	c.sink.Events(nil)
	c.sink.Items(nil)

	c.mu.Lock()
	c.started = time.Now()
	c.mu.Unlock()

	err := c.Controller.Connect(ctx)
	c.sink.Capture(c.Controller.CaptureState())
	return err
}

func (c *Console) Disconnect(ctx context.Context) error {
	err := c.Controller.Disconnect(ctx)
	c.sink.Capture(c.Controller.CaptureState())
	return err
}

func (c *Console) Connected() bool {
	return c.Controller.State() != Idle
}

func (c *Console) ChangeTurnMode(ctx context.Context, mode TurnMode) error {
	err := c.Controller.ChangeTurnMode(ctx, mode)
	c.sink.Capture(c.Controller.CaptureState())
	return err
}

func (c *Console) StartTalking(ctx context.Context) error {
	err := c.Controller.StartManualCapture(ctx)
	c.sink.Capture(c.Controller.CaptureState())
	return err
}

func (c *Console) StopTalking(ctx context.Context) error {
	err := c.Controller.StopManualCapture(ctx)
	c.sink.Capture(c.Controller.CaptureState())
	return err
}

func (c *Console) DeleteItem(ctx context.Context, id string) error {
	return c.Reconciler.DeleteItem(ctx, id)
}

// ExportCSV writes the current transcript.
func (c *Console) ExportCSV(w io.Writer) error {
	if err := conversation.WriteCSV(w, c.Reconciler.Items(), time.Now()); err != nil {
		return fmt.Errorf("export transcript: %w", err)
	}
	return nil
}

// Started is when the current conversation was connected. Event times are
// shown relative to it.
func (c *Console) Started() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

type nopSink struct{}

func (nopSink) Events([]eventlog.Event)   {}
func (nopSink) Items([]conversation.Item) {}
func (nopSink) Memory([]Entry)            {}
func (nopSink) Capture(CaptureState)      {}
func (nopSink) Error(error)               {}
