package session

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"parley/realtime"
)

// MemoryTool is the definition of the tool that lets the agent remember
// facts about the user for the rest of the conversation.
var MemoryTool = realtime.ToolDefinition{
	Name:        "set_memory",
	Description: "Saves important data about the user into memory.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key": map[string]any{
				"type":        "string",
				"description": "The key of the memory value. Always use lowercase and underscores, no other characters.",
			},
			"value": map[string]any{
				"type":        "string",
				"description": "Value can be anything represented as a string",
			},
		},
		"required": []string{"key", "value"},
	},
}

type Entry struct {
	Key   string
	Value string
}

// Memory is the key/value store behind the set_memory tool.
type Memory struct {
	mu       sync.Mutex
	values   map[string]string
	onChange func([]Entry)
}

func NewMemory(onChange func([]Entry)) *Memory {
	return &Memory{values: make(map[string]string), onChange: onChange}
}

// Handle is the set_memory tool handler.
func (m *Memory) Handle(args map[string]any) (any, error) {
	key, _ := args["key"].(string)
	if key == "" {
		return nil, fmt.Errorf("set_memory: missing key")
	}
	value := fmt.Sprint(args["value"])
	if args["value"] == nil {
		value = ""
	}
	m.Set(key, value)
	return map[string]any{"ok": true}, nil
}

func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	m.values[key] = value
	entries := m.entriesLocked()
	m.mu.Unlock()
	if m.onChange != nil {
		m.onChange(entries)
	}
}

// Entries returns the stored values sorted by key.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entriesLocked()
}

func (m *Memory) entriesLocked() []Entry {
	entries := make([]Entry, 0, len(m.values))
	for _, k := range slices.Sorted(maps.Keys(m.values)) {
		entries = append(entries, Entry{Key: k, Value: m.values[k]})
	}
	return entries
}

func (m *Memory) Clear() {
	m.mu.Lock()
	clear(m.values)
	m.mu.Unlock()
	if m.onChange != nil {
		m.onChange(nil)
	}
}
