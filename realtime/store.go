package realtime

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"parley/conversation"
)

type speechSpan struct {
	startMs int
	audio   []int16
}

// store is the authoritative conversation item list, kept in step with the
// server's events.
type store struct {
	rate int

	mu         sync.Mutex
	items      []*conversation.Item
	byID       map[string]*conversation.Item
	inFlight   map[string]bool
	inputAudio []int16
	queued     []int16
	speech     map[string]*speechSpan
}

func newStore(rate int) *store {
	s := &store{rate: rate}
	s.reset()
	return s
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.byID = make(map[string]*conversation.Item)
	s.inFlight = make(map[string]bool)
	s.inputAudio = nil
	s.queued = nil
	s.speech = make(map[string]*speechSpan)
}

// appendInput records microphone audio sent to the server so that user
// items can later carry the audio they were transcribed from.
func (s *store) appendInput(samples []int16) {
	s.mu.Lock()
	s.inputAudio = append(s.inputAudio, samples...)
	s.mu.Unlock()
}

// queueInput holds a committed manual-turn buffer until the user item it
// produces is created.
func (s *store) queueInput(samples []int16) {
	s.mu.Lock()
	s.queued = slices.Clone(samples)
	s.mu.Unlock()
}

func (s *store) list() []conversation.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conversation.Item, len(s.items))
	for i, it := range s.items {
		out[i] = it.Clone()
	}
	return out
}

func (s *store) get(id string) (conversation.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byID[id]
	if !ok {
		return conversation.Item{}, false
	}
	return it.Clone(), true
}

func (s *store) responding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight) > 0
}

// apply folds ev into the item list. It returns the affected item and the
// incremental delta when the event changed an item.
func (s *store) apply(ev *serverEvent) (conversation.Item, *conversation.Delta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case EventItemCreated:
		if ev.Item == nil {
			return conversation.Item{}, nil, false, fmt.Errorf("%s: missing item", ev.Type)
		}
		it := s.create(ev.Item)
		return it.Clone(), nil, true, nil

	case EventItemTruncated:
		it, err := s.lookup(ev.Type, ev.ItemID)
		if err != nil {
			return conversation.Item{}, nil, false, err
		}
		end := ev.AudioEndMs * s.rate / 1000
		it.Formatted.Transcript = ""
		if end < len(it.Formatted.Audio) {
			it.Formatted.Audio = it.Formatted.Audio[:end]
		}
		return it.Clone(), nil, true, nil

	case EventItemDeleted:
		if _, err := s.lookup(ev.Type, ev.ItemID); err != nil {
			return conversation.Item{}, nil, false, err
		}
		deleted := *s.byID[ev.ItemID]
		delete(s.byID, ev.ItemID)
		s.items = slices.DeleteFunc(s.items, func(it *conversation.Item) bool { return it.ID == ev.ItemID })
		return deleted.Clone(), nil, true, nil

	case EventInputTranscriptionCompleted:
		it, err := s.lookup(ev.Type, ev.ItemID)
		if err != nil {
			return conversation.Item{}, nil, false, err
		}
		transcript := ev.Transcript
		if transcript == "" {
			// an empty transcript still marks the item as transcribed
			transcript = " "
		}
		it.Formatted.Transcript = transcript
		return it.Clone(), &conversation.Delta{Transcript: ev.Transcript}, true, nil

	case EventSpeechStarted:
		s.speech[ev.ItemID] = &speechSpan{startMs: ev.AudioStartMs}
		return conversation.Item{}, nil, false, nil

	case EventSpeechStopped:
		span, ok := s.speech[ev.ItemID]
		if !ok {
			span = &speechSpan{}
			s.speech[ev.ItemID] = span
		}
		start := min(span.startMs*s.rate/1000, len(s.inputAudio))
		end := min(ev.AudioEndMs*s.rate/1000, len(s.inputAudio))
		if start < end {
			span.audio = slices.Clone(s.inputAudio[start:end])
		}
		return conversation.Item{}, nil, false, nil

	case EventResponseCreated:
		if ev.Response != nil && ev.Response.ID != "" {
			s.inFlight[ev.Response.ID] = true
		}
		return conversation.Item{}, nil, false, nil

	case EventResponseDone:
		if ev.Response != nil {
			delete(s.inFlight, ev.Response.ID)
		}
		return conversation.Item{}, nil, false, nil

	case EventResponseOutputItemDone:
		if ev.Item == nil {
			return conversation.Item{}, nil, false, fmt.Errorf("%s: missing item", ev.Type)
		}
		it, err := s.lookup(ev.Type, ev.Item.ID)
		if err != nil {
			return conversation.Item{}, nil, false, err
		}
		it.Status = status(ev.Item.Status)
		if it.Formatted.Tool != nil && ev.Item.Arguments != "" {
			it.Formatted.Tool.Arguments = ev.Item.Arguments
		}
		return it.Clone(), nil, true, nil

	case EventResponseAudioTranscriptDelta:
		it, err := s.lookup(ev.Type, ev.ItemID)
		if err != nil {
			return conversation.Item{}, nil, false, err
		}
		it.Formatted.Transcript += ev.Delta
		return it.Clone(), &conversation.Delta{Transcript: ev.Delta}, true, nil

	case EventResponseTextDelta:
		it, err := s.lookup(ev.Type, ev.ItemID)
		if err != nil {
			return conversation.Item{}, nil, false, err
		}
		it.Formatted.Text += ev.Delta
		return it.Clone(), &conversation.Delta{Text: ev.Delta}, true, nil

	case EventResponseAudioDelta:
		it, err := s.lookup(ev.Type, ev.ItemID)
		if err != nil {
			return conversation.Item{}, nil, false, err
		}
		samples, err := DecodePCM16(ev.Delta)
		if err != nil {
			return conversation.Item{}, nil, false, fmt.Errorf("%s: %w", ev.Type, err)
		}
		it.Formatted.Audio = append(it.Formatted.Audio, samples...)
		return it.Clone(), &conversation.Delta{Audio: samples}, true, nil

	case EventResponseFunctionArgumentsDelta:
		it, err := s.lookup(ev.Type, ev.ItemID)
		if err != nil {
			return conversation.Item{}, nil, false, err
		}
		if it.Formatted.Tool != nil {
			it.Formatted.Tool.Arguments += ev.Delta
		}
		return it.Clone(), &conversation.Delta{Arguments: ev.Delta}, true, nil
	}
	return conversation.Item{}, nil, false, nil
}

func (s *store) lookup(eventType, id string) (*conversation.Item, error) {
	it, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s: item %q: %w", eventType, id, ErrItemNotFound)
	}
	return it, nil
}

func (s *store) create(w *wireItem) *conversation.Item {
	if it, ok := s.byID[w.ID]; ok {
		return it
	}
	it := &conversation.Item{
		ID:     w.ID,
		Role:   conversation.Role(w.Role),
		Type:   w.Type,
		Status: status(w.Status),
	}
	for _, c := range w.Content {
		switch c.Type {
		case "text", "input_text":
			it.Formatted.Text += c.Text
		case "audio", "input_audio":
			it.Formatted.Transcript += c.Transcript
		}
	}

	switch w.Type {
	case conversation.TypeFunctionCall:
		it.Formatted.Tool = &conversation.Tool{Name: w.Name, CallID: w.CallID, Arguments: w.Arguments}
		it.Status = conversation.StatusPending
	case conversation.TypeFunctionCallOutput:
		it.Formatted.Output = w.Output
		it.Status = conversation.StatusCompleted
	}

	if it.Role == conversation.RoleUser {
		switch {
		case s.queued != nil:
			it.Formatted.Audio = s.queued
			s.queued = nil
		case s.speech[w.ID] != nil:
			it.Formatted.Audio = s.speech[w.ID].audio
			delete(s.speech, w.ID)
		}
		// user items arrive whole from the client side
		it.Status = conversation.StatusCompleted
	}

	s.items = append(s.items, it)
	s.byID[it.ID] = it
	return it
}

func status(s string) conversation.Status {
	switch s {
	case "completed":
		return conversation.StatusCompleted
	case "incomplete", "failed", "cancelled":
		return conversation.StatusFailed
	}
	return conversation.StatusPending
}

// EncodePCM16 packs samples as little-endian 16-bit PCM in base64.
func EncodePCM16(samples []int16) string {
	buf := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodePCM16 is the inverse of EncodePCM16. A trailing odd byte is dropped.
func DecodePCM16(b64 string) ([]int16, error) {
	buf, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
	}
	return samples, nil
}
