package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"parley/clipboard"
	"parley/conversation"
	"parley/eventlog"
	"parley/hotkey"
	"parley/session"
)

// TUI message types
type EventsMsg struct{ Events []eventlog.Event }
type ItemsMsg struct{ Items []conversation.Item }
type MemoryMsg struct{ Entries []session.Entry }
type CaptureMsg struct{ State session.CaptureState }
type ErrorMsg struct{ Err error }
type BarsMsg struct{ Client, Server string }
type HotkeyMsg struct{ Action hotkey.Action }
type opDoneMsg struct {
	op  string
	err error
}

// console is the part of session.Console the TUI drives.
type console interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	ChangeTurnMode(ctx context.Context, mode session.TurnMode) error
	StartTalking(ctx context.Context) error
	StopTalking(ctx context.Context) error
	DeleteItem(ctx context.Context, id string) error
	ExportCSV(w io.Writer) error
	Started() time.Time
}

type pane int

const (
	paneTranscript pane = iota
	paneEvents
)

const (
	sideWidth = 44
	barCols   = sideWidth - 4
	barRows   = 3
)

type tuiModel struct {
	console    console
	hotkeyName string

	width, height int
	focus         pane
	connected     bool
	busy          bool
	capture       session.CaptureState

	events   []eventlog.Event
	items    []conversation.Item
	memory   []session.Entry
	itemSel  int
	eventSel int
	expanded map[string]bool // keyed by event id

	clientBars string
	serverBars string
	status     string
	statusErr  bool
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

func newTUIModel(c console, hotkeyName string, mode session.TurnMode) tuiModel {
	return tuiModel{
		console:    c,
		hotkeyName: hotkeyName,
		capture:    session.CaptureState{TurnMode: mode, CanPushToTalk: mode == session.TurnManual},
		expanded:   make(map[string]bool),
	}
}

func NewTUIProgram(m tuiModel) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

// tuiSend delivers msg to the running program, if any.
func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// tuiSink forwards console notifications into the program.
type tuiSink struct{}

func (tuiSink) Events(ev []eventlog.Event)         { tuiSend(EventsMsg{Events: ev}) }
func (tuiSink) Items(items []conversation.Item)    { tuiSend(ItemsMsg{Items: items}) }
func (tuiSink) Memory(entries []session.Entry)     { tuiSend(MemoryMsg{Entries: entries}) }
func (tuiSink) Capture(state session.CaptureState) { tuiSend(CaptureMsg{State: state}) }
func (tuiSink) Error(err error)                    { tuiSend(ErrorMsg{Err: err}) }

func (m tuiModel) Init() tea.Cmd {
	return nil
}

// run executes a console operation off the UI goroutine.
func (m tuiModel) run(op string, f func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: op, err: f(context.Background())}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case HotkeyMsg:
		if !m.connected || !m.capture.CanPushToTalk {
			return m, nil
		}
		if msg.Action == hotkey.Start {
			return m, m.run("talk", m.console.StartTalking)
		}
		return m, m.run("send", m.console.StopTalking)

	case opDoneMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.setError(fmt.Errorf("%s: %w", msg.op, msg.err))
			if msg.op == "connect" {
				m.connected = false
			}
		case msg.op == "connect":
			m.connected = true
			m.setStatus("connected")
		case msg.op == "disconnect":
			m.connected = false
			m.setStatus("disconnected")
		}

	case EventsMsg:
		m.events = msg.Events
		if len(m.events) == 0 {
			clear(m.expanded)
		}
		m.eventSel = clampSel(m.eventSel, len(m.events))

	case ItemsMsg:
		m.items = msg.Items
		m.itemSel = clampSel(m.itemSel, len(m.items))

	case MemoryMsg:
		m.memory = msg.Entries

	case CaptureMsg:
		m.capture = msg.State

	case ErrorMsg:
		m.setError(msg.Err)

	case BarsMsg:
		m.clientBars = msg.Client
		m.serverBars = msg.Server
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "c":
		if m.busy {
			return m, nil
		}
		m.busy = true
		if m.connected {
			m.setStatus("disconnecting...")
			return m, m.run("disconnect", m.console.Disconnect)
		}
		m.setStatus("connecting...")
		return m, m.run("connect", m.console.Connect)

	case "m":
		next := session.TurnVAD
		if m.capture.TurnMode == session.TurnVAD {
			next = session.TurnManual
		}
		return m, m.run("turn mode", func(ctx context.Context) error {
			return m.console.ChangeTurnMode(ctx, next)
		})

	case " ":
		if !m.connected || !m.capture.CanPushToTalk {
			return m, nil
		}
		if m.capture.IsCapturing {
			return m, m.run("send", m.console.StopTalking)
		}
		return m, m.run("talk", m.console.StartTalking)

	case "tab":
		if m.focus == paneTranscript {
			m.focus = paneEvents
		} else {
			m.focus = paneTranscript
		}

	case "up", "k":
		if m.focus == paneEvents {
			m.eventSel = clampSel(m.eventSel-1, len(m.events))
		} else {
			m.itemSel = clampSel(m.itemSel-1, len(m.items))
		}

	case "down", "j":
		if m.focus == paneEvents {
			m.eventSel = clampSel(m.eventSel+1, len(m.events))
		} else {
			m.itemSel = clampSel(m.itemSel+1, len(m.items))
		}

	case "enter":
		if m.focus == paneEvents && m.eventSel < len(m.events) {
			key := eventKey(m.events[m.eventSel], m.eventSel)
			m.expanded[key] = !m.expanded[key]
		}

	case "x":
		if it, ok := m.selectedItem(); ok {
			id := it.ID
			return m, m.run("delete", func(ctx context.Context) error {
				return m.console.DeleteItem(ctx, id)
			})
		}

	case "y":
		if it, ok := m.selectedItem(); ok {
			if err := clipboard.Copy(it.DisplayText()); err != nil {
				m.setError(fmt.Errorf("copy: %w", err))
			} else {
				m.setStatus("copied to clipboard")
			}
		}

	case "e":
		name, err := m.export()
		if err != nil {
			m.setError(fmt.Errorf("export: %w", err))
		} else {
			m.setStatus("saved " + name)
		}
	}
	return m, nil
}

func (m tuiModel) selectedItem() (conversation.Item, bool) {
	if m.focus != paneTranscript || m.itemSel >= len(m.items) {
		return conversation.Item{}, false
	}
	return m.items[m.itemSel], true
}

func (m tuiModel) export() (string, error) {
	name := "parley-transcript-" + time.Now().Format("20060102-150405") + ".csv"
	f, err := os.Create(name)
	if err != nil {
		return "", err
	}
	if err := m.console.ExportCSV(f); err != nil {
		f.Close()
		return "", err
	}
	return name, f.Close()
}

func (m *tuiModel) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *tuiModel) setError(err error) {
	m.status = err.Error()
	m.statusErr = true
}

func clampSel(i, n int) int {
	return max(0, min(i, n-1))
}

// eventKey identifies an event across log snapshots. Merged entries carry
// the latest payload, so the index breaks ties for events without an id.
func eventKey(ev eventlog.Event, i int) string {
	if id := ev.ID(); id != "" {
		return id
	}
	return fmt.Sprintf("#%d", i)
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	side := lipgloss.NewStyle().
		Width(sideWidth - 1).
		Height(m.height).
		Render(m.renderSide())

	mainWidth := max(m.width-sideWidth-1, 20)
	wrapWidth := max(mainWidth-4, 10)
	transcriptHeight := max(m.height/2, 3)
	eventsHeight := max(m.height-transcriptHeight, 3)

	transcript := lipgloss.NewStyle().
		Width(mainWidth).
		Height(transcriptHeight).
		MaxHeight(transcriptHeight).
		PaddingLeft(1).
		Render(m.renderTranscript(wrapWidth, transcriptHeight))

	events := lipgloss.NewStyle().
		Width(mainWidth).
		Height(eventsHeight).
		MaxHeight(eventsHeight).
		PaddingLeft(1).
		Render(m.renderEvents(wrapWidth, eventsHeight))

	return lipgloss.JoinHorizontal(lipgloss.Top, side, lipgloss.JoinVertical(lipgloss.Left, transcript, events))
}

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	activeTitle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	selStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#0099ff"))
	agentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#009900"))
)

func (m tuiModel) renderSide() string {
	var lines []string

	switch {
	case m.busy:
		lines = append(lines, dimStyle.Render("… working"))
	case m.connected && m.capture.IsCapturing:
		lines = append(lines, errStyle.Bold(true).Render("● LISTENING"))
	case m.connected:
		lines = append(lines, okStyle.Render("● CONNECTED"))
	default:
		lines = append(lines, dimStyle.Render("○ DISCONNECTED"))
	}

	mode := "manual (push to talk)"
	if m.capture.TurnMode == session.TurnVAD {
		mode = "vad (server detects turns)"
	}
	lines = append(lines, dimStyle.Render("mode: "+mode), "")

	lines = append(lines, titleStyle.Render("you"))
	lines = append(lines, strings.Split(m.clientBars, "\n")...)
	lines = append(lines, titleStyle.Render("agent"))
	lines = append(lines, strings.Split(m.serverBars, "\n")...)
	lines = append(lines, "")

	lines = append(lines, titleStyle.Render("memory"))
	if len(m.memory) == 0 {
		lines = append(lines, dimStyle.Render("  (empty)"))
	}
	for _, e := range m.memory {
		for _, l := range wrapText(e.Key+": "+e.Value, sideWidth-4) {
			lines = append(lines, "  "+l)
		}
	}
	lines = append(lines, "")

	if m.status != "" {
		st := dimStyle
		if m.statusErr {
			st = errStyle
		}
		for _, l := range wrapText(m.status, sideWidth-2) {
			lines = append(lines, st.Render(l))
		}
		lines = append(lines, "")
	}

	help := [][2]string{
		{"c", "connect/disconnect"},
		{"m", "switch turn mode"},
		{"space", "talk / send"},
		{"tab", "switch pane"},
		{"enter", "expand event"},
		{"x", "delete item"},
		{"y", "copy item"},
		{"e", "export csv"},
		{"q", "quit"},
	}
	if m.hotkeyName != "" {
		help = append([][2]string{{m.hotkeyName, "hold to talk"}}, help...)
	}
	for _, h := range help {
		lines = append(lines, keyStyle.Render(h[0])+helpStyle.Render(" "+h[1]))
	}
	lines = append(lines, helpStyle.Render("parley "+version))
	return strings.Join(lines, "\n")
}

func (m tuiModel) paneTitle(p pane, text string) string {
	if m.focus == p {
		return activeTitle.Render(text)
	}
	return titleStyle.Render(text)
}

func (m tuiModel) renderTranscript(width, height int) string {
	var lines []string
	lines = append(lines, m.paneTitle(paneTranscript, fmt.Sprintf("Conversation (%d)", len(m.items))), "")
	if len(m.items) == 0 {
		lines = append(lines, dimStyle.Render("awaiting connection..."))
		return strings.Join(lines, "\n")
	}

	var body []string
	selLine := 0
	for i, it := range m.items {
		marker := "  "
		if i == m.itemSel && m.focus == paneTranscript {
			marker = selStyle.Render("> ")
			selLine = len(body)
		}
		speaker := dimStyle
		switch it.Role {
		case conversation.RoleUser:
			speaker = userStyle
		case conversation.RoleAssistant:
			speaker = agentStyle
		}
		label := fmt.Sprintf("%-6s", it.Speaker())
		if it.Formatted.File != nil {
			label = fmt.Sprintf("%-5s♪", it.Speaker())
		}
		text := wrapText(it.DisplayText(), max(width-10, 10))
		for j, l := range text {
			prefix := strings.Repeat(" ", 10)
			if j == 0 {
				prefix = marker + speaker.Render(label) + "  "
			}
			body = append(body, prefix+l)
		}
	}
	return strings.Join(append(lines, scrollTo(body, selLine, height-2)...), "\n")
}

func (m tuiModel) renderEvents(width, height int) string {
	var lines []string
	lines = append(lines, m.paneTitle(paneEvents, fmt.Sprintf("Events (%d)", len(m.events))), "")
	if len(m.events) == 0 {
		lines = append(lines, dimStyle.Render("no events yet"))
		return strings.Join(lines, "\n")
	}

	var start time.Time
	if m.console != nil {
		start = m.console.Started()
	}
	var body []string
	selLine := 0
	for i, ev := range m.events {
		if i == m.eventSel {
			selLine = len(body)
		}
		body = append(body, formatEvent(ev, start, i == m.eventSel && m.focus == paneEvents))
		if m.expanded[eventKey(ev, i)] {
			for _, l := range strings.Split(ev.PayloadJSON(), "\n") {
				for _, w := range wrapText(l, max(width-4, 10)) {
					body = append(body, "    "+dimStyle.Render(w))
				}
			}
		}
	}
	return strings.Join(append(lines, scrollTo(body, selLine, height-2)...), "\n")
}

// formatEvent renders one log entry as "mm:ss.hh ↑ type (xN)".
func formatEvent(ev eventlog.Event, start time.Time, selected bool) string {
	arrow, st := "↓", agentStyle
	if ev.Source == eventlog.SourceClient {
		arrow, st = "↑", userStyle
	}
	if ev.Type == eventlog.TypeError {
		st = errStyle
	}
	line := eventlog.FormatTime(start, ev.Time) + " " + st.Render(arrow) + " " + ev.Type
	if ev.RepeatCount > 1 {
		line += dimStyle.Render(fmt.Sprintf(" (%d)", ev.RepeatCount))
	}
	if selected {
		return selStyle.Render("> ") + line
	}
	return "  " + line
}

// scrollTo returns at most height lines of body keeping line sel visible,
// preferring the tail.
func scrollTo(body []string, sel, height int) []string {
	if height <= 0 || len(body) <= height {
		return body
	}
	end := len(body)
	if sel < end-height {
		end = sel + height
	}
	return body[end-height : end]
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		r := []rune(para)
		for len(r) > width {
			splitAt := width
			for i := width; i > 0; i-- {
				if r[i] == ' ' {
					splitAt = i
					break
				}
			}
			lines = append(lines, string(r[:splitAt]))
			r = []rune(strings.TrimLeft(string(r[splitAt:]), " "))
		}
		lines = append(lines, string(r))
	}
	return lines
}
