package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/conversation"
	"parley/eventlog"
	"parley/hotkey"
	"parley/session"
)

type fakeConsole struct {
	calls      []string
	deleted    []string
	modes      []session.TurnMode
	connectErr error
}

func (f *fakeConsole) Connect(context.Context) error {
	f.calls = append(f.calls, "connect")
	return f.connectErr
}

func (f *fakeConsole) Disconnect(context.Context) error {
	f.calls = append(f.calls, "disconnect")
	return nil
}

func (f *fakeConsole) ChangeTurnMode(_ context.Context, mode session.TurnMode) error {
	f.modes = append(f.modes, mode)
	return nil
}

func (f *fakeConsole) StartTalking(context.Context) error {
	f.calls = append(f.calls, "talk")
	return nil
}

func (f *fakeConsole) StopTalking(context.Context) error {
	f.calls = append(f.calls, "send")
	return nil
}

func (f *fakeConsole) DeleteItem(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeConsole) ExportCSV(w io.Writer) error {
	_, err := io.WriteString(w, "time,speaker,message\n")
	return err
}

func (f *fakeConsole) Started() time.Time { return time.Time{} }

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command, feeding its message
// back into the model.
func press(t *testing.T, m tuiModel, k string) tuiModel {
	t.Helper()
	next, cmd := m.Update(key(k))
	m = next.(tuiModel)
	if cmd != nil {
		if msg := cmd(); msg != nil {
			next, _ = m.Update(msg)
			m = next.(tuiModel)
		}
	}
	return m
}

func TestTUIConnectToggle(t *testing.T) {
	fc := &fakeConsole{}
	m := newTUIModel(fc, "", session.TurnManual)

	m = press(t, m, "c")
	assert.True(t, m.connected)
	assert.False(t, m.busy)
	assert.Equal(t, "connected", m.status)

	m = press(t, m, "c")
	assert.False(t, m.connected)
	assert.Equal(t, []string{"connect", "disconnect"}, fc.calls)
}

func TestTUIConnectFailure(t *testing.T) {
	fc := &fakeConsole{connectErr: errors.New("no microphone")}
	m := press(t, newTUIModel(fc, "", session.TurnManual), "c")

	assert.False(t, m.connected)
	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "no microphone")
}

func TestTUIBusyIgnoresConnect(t *testing.T) {
	fc := &fakeConsole{}
	m := newTUIModel(fc, "", session.TurnManual)

	next, cmd := m.Update(key("c"))
	require.NotNil(t, cmd)
	m = next.(tuiModel)
	assert.True(t, m.busy)

	_, cmd = m.Update(key("c"))
	assert.Nil(t, cmd, "second press while connecting does nothing")
}

func TestTUITalkRequiresConnection(t *testing.T) {
	fc := &fakeConsole{}
	m := newTUIModel(fc, "", session.TurnManual)

	_, cmd := m.Update(key(" "))
	assert.Nil(t, cmd)

	m = press(t, m, "c")
	m = press(t, m, " ")
	next, _ := m.Update(CaptureMsg{State: session.CaptureState{TurnMode: session.TurnManual, IsCapturing: true, CanPushToTalk: true}})
	m = next.(tuiModel)
	m = press(t, m, " ")
	assert.Equal(t, []string{"connect", "talk", "send"}, fc.calls)
}

func TestTUITalkIgnoredInVAD(t *testing.T) {
	fc := &fakeConsole{}
	m := press(t, newTUIModel(fc, "", session.TurnVAD), "c")

	_, cmd := m.Update(key(" "))
	assert.Nil(t, cmd)
	_, cmd = m.Update(HotkeyMsg{Action: hotkey.Start})
	assert.Nil(t, cmd)
}

func TestTUIHotkey(t *testing.T) {
	fc := &fakeConsole{}
	m := press(t, newTUIModel(fc, "ctrl+shift+space", session.TurnManual), "c")

	for _, a := range []hotkey.Action{hotkey.Start, hotkey.Stop} {
		_, cmd := m.Update(HotkeyMsg{Action: a})
		require.NotNil(t, cmd)
		cmd()
	}
	assert.Equal(t, []string{"connect", "talk", "send"}, fc.calls)
}

func TestTUIToggleTurnMode(t *testing.T) {
	fc := &fakeConsole{}
	m := press(t, newTUIModel(fc, "", session.TurnManual), "m")
	next, _ := m.Update(CaptureMsg{State: session.CaptureState{TurnMode: session.TurnVAD}})
	press(t, next.(tuiModel), "m")

	assert.Equal(t, []session.TurnMode{session.TurnVAD, session.TurnManual}, fc.modes)
}

func TestTUIDeleteSelectedItem(t *testing.T) {
	fc := &fakeConsole{}
	m := newTUIModel(fc, "", session.TurnManual)
	next, _ := m.Update(ItemsMsg{Items: []conversation.Item{
		{ID: "item_1", Role: conversation.RoleUser},
		{ID: "item_2", Role: conversation.RoleAssistant},
	}})
	m = next.(tuiModel)

	m = press(t, m, "down")
	press(t, m, "x")
	assert.Equal(t, []string{"item_2"}, fc.deleted)
}

func TestTUIItemsShrinkClampsSelection(t *testing.T) {
	m := newTUIModel(&fakeConsole{}, "", session.TurnManual)
	m.itemSel = 5
	next, _ := m.Update(ItemsMsg{Items: []conversation.Item{{ID: "a"}}})
	assert.Equal(t, 0, next.(tuiModel).itemSel)
}

func TestTUIExpandEvent(t *testing.T) {
	m := newTUIModel(&fakeConsole{}, "", session.TurnManual)
	ev := eventlog.Event{
		Time:        time.Now(),
		Source:      eventlog.SourceServer,
		Type:        "session.created",
		RepeatCount: 1,
		Payload:     map[string]any{"event_id": "evt_1", "type": "session.created"},
	}
	next, _ := m.Update(EventsMsg{Events: []eventlog.Event{ev}})
	m = next.(tuiModel)

	m = press(t, m, "tab")
	m = press(t, m, "enter")
	assert.True(t, m.expanded["evt_1"])

	next, _ = m.Update(EventsMsg{})
	assert.Empty(t, next.(tuiModel).expanded, "clearing the log collapses all entries")
}

func TestTUIView(t *testing.T) {
	m := newTUIModel(&fakeConsole{}, "f9", session.TurnManual)
	assert.Equal(t, "Loading...", m.View())

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	next, _ = next.Update(ItemsMsg{Items: []conversation.Item{{
		ID:        "item_1",
		Role:      conversation.RoleAssistant,
		Formatted: conversation.Formatted{Transcript: "Hello there"},
	}}})
	next, _ = next.Update(MemoryMsg{Entries: []session.Entry{{Key: "name", Value: "Ada"}}})
	view := next.View()

	assert.Contains(t, view, "Hello there")
	assert.Contains(t, view, "name: Ada")
	assert.Contains(t, view, "hold to talk")
	assert.Contains(t, view, "DISCONNECTED")
}

func TestFormatEvent(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ev := eventlog.Event{
		Time:        start.Add(61*time.Second + 250*time.Millisecond),
		Source:      eventlog.SourceClient,
		Type:        "input_audio_buffer.append",
		RepeatCount: 3,
	}
	line := formatEvent(ev, start, false)
	assert.True(t, strings.HasPrefix(line, "  01:01.25 "))
	assert.Contains(t, line, "↑")
	assert.Contains(t, line, "input_audio_buffer.append")
	assert.Contains(t, line, "(3)")

	ev.RepeatCount = 1
	assert.NotContains(t, formatEvent(ev, start, false), "(1)")
}

func TestScrollTo(t *testing.T) {
	body := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, body, scrollTo(body, 0, 10))
	assert.Equal(t, []string{"d", "e"}, scrollTo(body, 4, 2), "tail by default")
	assert.Equal(t, []string{"a", "b"}, scrollTo(body, 0, 2), "selection stays visible")
	assert.Equal(t, []string{"b", "c"}, scrollTo(body, 1, 2))
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"short", 10, []string{"short"}},
		{"hello world again", 11, []string{"hello world", "again"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"one\ntwo", 10, []string{"one", "two"}},
		{"héllo wörld", 6, []string{"héllo", "wörld"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, wrapText(tt.text, tt.width), "wrapText(%q, %d)", tt.text, tt.width)
	}
}
