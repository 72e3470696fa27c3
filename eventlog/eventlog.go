package eventlog

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

type Source string

const (
	SourceClient Source = "client"
	SourceServer Source = "server"
)

// Event types whose audio payloads are dropped before an event is stored.
const (
	TypeInputAudioAppend   = "input_audio_buffer.append"
	TypeResponseAudioDelta = "response.audio.delta"
	TypeError              = "error"
)

// Event is one entry of the realtime event log. RepeatCount counts how many
// consecutive events with the same source and type were merged into it.
type Event struct {
	Time        time.Time
	Source      Source
	Type        string
	RepeatCount int
	Payload     map[string]any
}

// ID returns the event_id carried in the payload, if any.
func (e Event) ID() string {
	id, _ := e.Payload["event_id"].(string)
	return id
}

// PayloadJSON renders the payload for inspection.
func (e Event) PayloadJSON() string {
	data, err := json.MarshalIndent(e.Payload, "", "  ")
	if err != nil {
		return fmt.Sprintf("<unprintable payload: %v>", err)
	}
	return string(data)
}

// Redact returns a copy of ev whose bulky audio fields are replaced by an
// empty placeholder. The caller's payload map is never modified.
func Redact(ev Event) Event {
	var field string
	switch ev.Type {
	case TypeInputAudioAppend:
		field = "audio"
	case TypeResponseAudioDelta:
		field = "delta"
	}
	if field == "" {
		return ev
	}
	if _, ok := ev.Payload[field]; !ok {
		return ev
	}
	p := maps.Clone(ev.Payload)
	p[field] = ""
	ev.Payload = p
	return ev
}

// Log is the append-only, merge-on-repeat event log.
type Log struct {
	mu      sync.Mutex
	entries []Event
}

func New() *Log {
	return &Log{}
}

// Append records ev and returns a snapshot of the log. If the last entry has
// the same source and type, it is replaced by ev with its repeat count
// incremented; otherwise ev is appended with a repeat count of one.
func (l *Log) Append(ev Event) []Event {
	ev = Redact(ev)

	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.entries); n > 0 {
		last := l.entries[n-1]
		if last.Source == ev.Source && last.Type == ev.Type {
			ev.RepeatCount = last.RepeatCount + 1
			l.entries[n-1] = ev
			return slices.Clone(l.entries)
		}
	}
	ev.RepeatCount = 1
	l.entries = append(l.entries, ev)
	return slices.Clone(l.entries)
}

func (l *Log) Entries() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// FormatTime renders t relative to start as mm:ss.hh.
func FormatTime(start, t time.Time) string {
	d := t.Sub(start)
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	hs := (ms / 10) % 100
	s := (ms / 1000) % 60
	m := (ms / 60_000) % 60
	return fmt.Sprintf("%02d:%02d.%02d", m, s, hs)
}
