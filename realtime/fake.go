package realtime

import (
	"context"
	"slices"
	"sync"
	"time"

	"parley/conversation"
)

type FakeCancel struct {
	TrackID string
	Offset  int
}

// FakeClient records the calls a session makes and never touches the
// network.
type FakeClient struct {
	ConnectErr error
	CancelErr  error
	UpdateErr  error
	// AppendDelay slows every AppendInputAudio call down.
	AppendDelay time.Duration

	mu        sync.Mutex
	connected bool
	session   SessionConfig
	calls     []string
	texts     []string
	audio     []int16
	responses []int
	cancels   []FakeCancel
	items     []conversation.Item
}

func NewFakeClient(session SessionConfig) *FakeClient {
	return &FakeClient{session: session}
}

func (f *FakeClient) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *FakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connect")
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	return nil
}

func (f *FakeClient) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disconnect")
	f.connected = false
	f.items = nil
	return nil
}

func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeClient) SendUserText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.record("text")
	f.texts = append(f.texts, text)
	return nil
}

func (f *FakeClient) UpdateSession(mutate func(*SessionConfig)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("session")
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	mutate(&f.session)
	return nil
}

func (f *FakeClient) TurnDetectionType() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session.TurnDetection == nil {
		return ""
	}
	return f.session.TurnDetection.Type
}

func (f *FakeClient) AppendInputAudio(samples []int16) error {
	if f.AppendDelay > 0 {
		time.Sleep(f.AppendDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.audio = append(f.audio, samples...)
	return nil
}

func (f *FakeClient) CreateResponse() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.record("response")
	f.responses = append(f.responses, len(f.audio))
	return nil
}

func (f *FakeClient) CancelResponse(trackID string, offset int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("cancel")
	if f.CancelErr != nil {
		return f.CancelErr
	}
	f.cancels = append(f.cancels, FakeCancel{TrackID: trackID, Offset: offset})
	return nil
}

func (f *FakeClient) DeleteItem(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete")
	n := len(f.items)
	f.items = slices.DeleteFunc(f.items, func(it conversation.Item) bool { return it.ID == id })
	if len(f.items) == n {
		return ErrItemNotFound
	}
	return nil
}

func (f *FakeClient) Items() []conversation.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]conversation.Item, len(f.items))
	for i, it := range f.items {
		out[i] = it.Clone()
	}
	return out
}

// SetItems replaces the conversation the fake reports.
func (f *FakeClient) SetItems(items ...conversation.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
}

func (f *FakeClient) Session() SessionConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

// Calls returns the recorded call names in order.
func (f *FakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *FakeClient) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.texts)
}

func (f *FakeClient) Audio() []int16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.audio)
}

// AudioAtResponse reports, for every CreateResponse call, how many samples
// had been appended before it.
func (f *FakeClient) AudioAtResponse() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.responses)
}

func (f *FakeClient) Cancels() []FakeCancel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.cancels)
}
