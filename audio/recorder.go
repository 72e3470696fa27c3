package audio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"parley/log"
)

type RecorderStatus string

const (
	StatusEnded     RecorderStatus = "ended"
	StatusPaused    RecorderStatus = "paused"
	StatusRecording RecorderStatus = "recording"
)

var (
	ErrNotBegun         = errors.New("audio: recorder not begun")
	ErrAlreadyRecording = errors.New("audio: already recording")
)

const frameQueue = 64

// Recorder owns the capture device for a session. Between Begin and End
// the microphone stays open and feeds the analyser; frames reach the
// Record callback only while recording.
type Recorder struct {
	ctx      Context
	device   *DeviceInfo
	config   StreamConfig
	analyser *Analyser

	// stopMu serializes Pause and End so a flush never races the queue
	// being closed.
	stopMu sync.Mutex

	mu      sync.Mutex
	capture CaptureDevice
	status  RecorderStatus
	onFrame func([]int16)
	frames  chan frame
	done    chan struct{}
}

// frame is one queued capture buffer, or a flush marker when flushed is
// set.
type frame struct {
	samples []int16
	flushed chan struct{}
}

func NewRecorder(ctx Context, device *DeviceInfo, sampleRate int) *Recorder {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	return &Recorder{
		ctx:      ctx,
		device:   device,
		config:   StreamConfig{SampleRate: sampleRate},
		analyser: NewAnalyser(sampleRate),
		status:   StatusEnded,
	}
}

// Begin opens the capture device.
func (r *Recorder) Begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture != nil {
		return nil
	}

	capture, err := r.ctx.NewCapture(r.device, r.config)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	capture.SetCallback(r.handle)
	if err := capture.Start(); err != nil {
		capture.Close()
		return fmt.Errorf("start capture: %w", err)
	}

	r.capture = capture
	r.status = StatusPaused
	r.frames = make(chan frame, frameQueue)
	r.done = make(chan struct{})
	go r.pump(r.frames, r.done)
	return nil
}

func (r *Recorder) handle(samples []int16) {
	r.analyser.Write(samples)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRecording {
		return
	}
	select {
	case r.frames <- frame{samples: slices.Clone(samples)}:
	default:
		log.Warnf("capture frame dropped (%d samples)", len(samples))
	}
}

// pump delivers frames outside the audio callback so slow consumers
// never stall the device.
func (r *Recorder) pump(frames <-chan frame, done chan<- struct{}) {
	defer close(done)
	for f := range frames {
		if f.flushed != nil {
			close(f.flushed)
			continue
		}
		r.mu.Lock()
		onFrame := r.onFrame
		r.mu.Unlock()
		if onFrame != nil {
			onFrame(f.samples)
		}
	}
}

// Record starts delivering captured frames to onFrame.
func (r *Recorder) Record(onFrame func([]int16)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.status {
	case StatusEnded:
		return ErrNotBegun
	case StatusRecording:
		return ErrAlreadyRecording
	}
	r.onFrame = onFrame
	r.status = StatusRecording
	return nil
}

// Pause stops capturing new frames. Frames captured before the call are
// delivered to the Record callback before Pause returns. The device stays
// open.
func (r *Recorder) Pause() error {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()

	r.mu.Lock()
	if r.status == StatusEnded {
		r.mu.Unlock()
		return ErrNotBegun
	}
	wasRecording := r.status == StatusRecording
	r.status = StatusPaused
	frames := r.frames
	r.mu.Unlock()

	if wasRecording {
		flushed := make(chan struct{})
		frames <- frame{flushed: flushed}
		<-flushed
	}
	return nil
}

// End closes the capture device. Frames already queued are delivered
// before End returns.
func (r *Recorder) End() error {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()

	r.mu.Lock()
	capture := r.capture
	frames, done := r.frames, r.done
	r.capture = nil
	r.frames = nil
	r.status = StatusEnded
	r.mu.Unlock()

	if capture == nil {
		return nil
	}
	capture.ClearCallback()
	capture.Stop()
	capture.Close()

	close(frames)
	<-done

	r.mu.Lock()
	r.onFrame = nil
	r.mu.Unlock()
	r.analyser.Reset()
	return nil
}

func (r *Recorder) Status() RecorderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Recorder) Frequencies() []float64 {
	return r.analyser.Frequencies()
}
