package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"parley/conversation"
	"parley/eventlog"
	"parley/log"
)

const (
	DefaultURL   = "wss://api.openai.com/v1/realtime"
	DefaultModel = "gpt-4o-realtime-preview-2024-10-01"
)

type Config struct {
	URL        string
	APIKey     string
	Model      string
	SampleRate int
	Session    SessionConfig
	Dialer     *websocket.Dialer
}

// Handlers receive the client's notifications. Server-side callbacks run on
// the read goroutine one at a time; client events are reported from the
// sending goroutine.
type Handlers struct {
	RealtimeEvent           func(ev eventlog.Event)
	Error                   func(err error)
	ConversationInterrupted func()
	ConversationUpdated     func(item conversation.Item, delta *conversation.Delta)
}

type tool struct {
	def     ToolDefinition
	handler ToolHandler
}

// Client is a realtime agent connection plus the conversation it carries.
type Client struct {
	cfg      Config
	handlers Handlers
	store    *store

	mu       sync.Mutex
	conn     *websocket.Conn
	readDone chan struct{}
	session  SessionConfig
	tools   map[string]tool
	pending []int16

	writeMu sync.Mutex
}

func NewClient(cfg Config, h Handlers) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	}
	return &Client{
		cfg:      cfg,
		handlers: h,
		store:    newStore(cfg.SampleRate),
		session:  cfg.Session,
		tools:    make(map[string]tool),
	}
}

func generateEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

// Connect dials the agent and pushes the current session configuration.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("realtime: already connected")
	}
	c.mu.Unlock()

	url := fmt.Sprintf("%s?model=%s", c.cfg.URL, c.cfg.Model)
	headers := http.Header{}
	if c.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := c.cfg.Dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return &Error{
				Code:       "connection_failed",
				Message:    fmt.Sprintf("failed to connect: %v", err),
				HTTPStatus: resp.StatusCode,
			}
		}
		return fmt.Errorf("realtime: failed to connect: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.readDone = done
	c.pending = nil
	c.mu.Unlock()
	c.store.reset()

	go c.readLoop(conn, done)

	if err := c.sendSession(); err != nil {
		c.Disconnect()
		return err
	}
	return nil
}

// Disconnect closes the connection, waits for the read goroutine to finish
// its current event and forgets the conversation. It must not be called
// from a handler.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn, done := c.conn, c.readDone
	c.conn = nil
	c.readDone = nil
	c.pending = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		if cerr := conn.Close(); cerr != nil {
			err = fmt.Errorf("realtime: close: %w", cerr)
		}
	}
	if done != nil {
		<-done
	}
	c.store.reset()
	return err
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// AddTool registers a function the agent may call. Tools added while
// connected take effect on the next session update.
func (c *Client) AddTool(def ToolDefinition, handler ToolHandler) error {
	if def.Name == "" {
		return errors.New("realtime: tool without a name")
	}
	if def.Type == "" {
		def.Type = "function"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tools[def.Name]; ok {
		return fmt.Errorf("realtime: tool %q already added", def.Name)
	}
	c.tools[def.Name] = tool{def: def, handler: handler}
	return nil
}

// UpdateSession applies mutate to the session configuration and sends it
// when connected.
func (c *Client) UpdateSession(mutate func(*SessionConfig)) error {
	c.mu.Lock()
	mutate(&c.session)
	connected := c.conn != nil
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return c.sendSession()
}

func (c *Client) Session() SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// TurnDetectionType returns "server_vad" when the agent detects turns, or
// an empty string for manual turns.
func (c *Client) TurnDetectionType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.TurnDetection == nil {
		return ""
	}
	return c.session.TurnDetection.Type
}

func (c *Client) sendSession() error {
	c.mu.Lock()
	sess := c.session
	sess.Tools = sess.Tools[:len(sess.Tools):len(sess.Tools)]
	for _, name := range slices.Sorted(maps.Keys(c.tools)) {
		sess.Tools = append(sess.Tools, c.tools[name].def)
	}
	c.mu.Unlock()

	return c.send(map[string]any{
		"type":    EventSessionUpdate,
		"session": sess,
	})
}

// SendUserText adds a user text message and asks for a response.
func (c *Client) SendUserText(text string) error {
	err := c.send(map[string]any{
		"type": EventConversationItemCreate,
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
	if err != nil {
		return err
	}
	return c.CreateResponse()
}

// AppendInputAudio streams microphone samples to the agent.
func (c *Client) AppendInputAudio(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	if err := c.send(map[string]any{
		"type":  EventInputAudioBufferAppend,
		"audio": EncodePCM16(samples),
	}); err != nil {
		return err
	}
	c.store.appendInput(samples)
	c.mu.Lock()
	if c.session.TurnDetection == nil {
		c.pending = append(c.pending, samples...)
	}
	c.mu.Unlock()
	return nil
}

// CreateResponse asks the agent to respond. For manual turns the pending
// input buffer is committed first.
func (c *Client) CreateResponse() error {
	c.mu.Lock()
	commit := c.session.TurnDetection == nil && len(c.pending) > 0
	pending := c.pending
	if commit {
		c.pending = nil
	}
	c.mu.Unlock()

	if commit {
		if err := c.send(map[string]any{"type": EventInputAudioBufferCommit}); err != nil {
			return err
		}
		c.store.queueInput(pending)
	}
	return c.send(map[string]any{"type": EventResponseCreate})
}

// CancelResponse stops the current response. When trackID names an
// assistant item, the item is also truncated to the audio actually heard,
// offset being the number of samples played.
func (c *Client) CancelResponse(trackID string, offset int) error {
	if trackID == "" {
		if !c.store.responding() {
			return nil
		}
		return c.send(map[string]any{"type": EventResponseCancel})
	}

	it, ok := c.store.get(trackID)
	if !ok {
		return fmt.Errorf("cancel %s: %w", trackID, ErrItemNotFound)
	}
	if it.Type != conversation.TypeMessage || it.Role != conversation.RoleAssistant {
		return fmt.Errorf("realtime: cancel %s: not an assistant message", trackID)
	}

	if c.store.responding() {
		if err := c.send(map[string]any{"type": EventResponseCancel}); err != nil {
			return err
		}
	}
	return c.send(map[string]any{
		"type":          EventConversationItemTruncate,
		"item_id":       trackID,
		"content_index": 0,
		"audio_end_ms":  offset * 1000 / c.cfg.SampleRate,
	})
}

// DeleteItem asks the agent to delete an item. The item leaves the
// conversation once the server confirms.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.send(map[string]any{
		"type":    EventConversationItemDelete,
		"item_id": id,
	})
}

// Items returns a copy of the conversation.
func (c *Client) Items() []conversation.Item {
	return c.store.list()
}

func (c *Client) send(event map[string]any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	event["event_id"] = generateEventID()

	c.writeMu.Lock()
	err := conn.WriteJSON(event)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("realtime: send %v: %w", event["type"], err)
	}

	if c.handlers.RealtimeEvent != nil {
		typ, _ := event["type"].(string)
		c.handlers.RealtimeEvent(eventlog.Event{
			Time:    time.Now(),
			Source:  eventlog.SourceClient,
			Type:    typ,
			Payload: clientPayload(event),
		})
	}
	return nil
}

// clientPayload converts an outgoing event to the plain JSON shape the
// event log shows.
func clientPayload(event map[string]any) map[string]any {
	data, err := json.Marshal(event)
	if err != nil {
		return event
	}
	var p map[string]any
	if err := json.Unmarshal(data, &p); err != nil {
		return event
	}
	return p
}

func (c *Client) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.conn == conn
			if current {
				c.conn = nil
			}
			c.mu.Unlock()
			if current {
				// the peer went away; a local Disconnect is not an error
				log.Warnf("realtime read: %v", err)
				c.emitError(fmt.Errorf("realtime: connection lost: %w", err))
			}
			return
		}
		c.handle(message)
	}
}

func (c *Client) handle(message []byte) {
	var payload map[string]any
	if err := json.Unmarshal(message, &payload); err != nil {
		c.emitError(fmt.Errorf("realtime: parse event: %w", err))
		return
	}
	var ev serverEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		c.emitError(fmt.Errorf("realtime: parse event: %w", err))
		return
	}

	if c.handlers.RealtimeEvent != nil {
		c.handlers.RealtimeEvent(eventlog.Event{
			Time:    time.Now(),
			Source:  eventlog.SourceServer,
			Type:    ev.Type,
			Payload: payload,
		})
	}

	if ev.Type == EventTypeError {
		if ev.Error != nil {
			c.emitError(ev.Error.toError())
		} else {
			c.emitError(&Error{Message: "unknown error"})
		}
		return
	}

	if ev.Type == EventSpeechStarted && c.handlers.ConversationInterrupted != nil {
		c.handlers.ConversationInterrupted()
	}

	item, delta, changed, err := c.store.apply(&ev)
	if err != nil {
		log.Warnf("realtime apply %s: %v", ev.Type, err)
		return
	}
	if changed && c.handlers.ConversationUpdated != nil {
		c.handlers.ConversationUpdated(item, delta)
	}

	if ev.Type == EventResponseOutputItemDone && item.Status == conversation.StatusCompleted && item.Formatted.Tool != nil {
		c.callTool(item.Formatted.Tool)
	}
}

// callTool runs a registered handler and returns its output to the agent.
// Handlers run on the read goroutine and are expected to be quick.
func (c *Client) callTool(t *conversation.Tool) {
	c.mu.Lock()
	registered, ok := c.tools[t.Name]
	c.mu.Unlock()

	var output any
	switch {
	case !ok:
		output = map[string]any{"error": fmt.Sprintf("tool %q is not available", t.Name)}
	default:
		var args map[string]any
		if t.Arguments != "" {
			if err := json.Unmarshal([]byte(t.Arguments), &args); err != nil {
				output = map[string]any{"error": fmt.Sprintf("invalid arguments: %v", err)}
				break
			}
		}
		result, err := registered.handler(args)
		if err != nil {
			output = map[string]any{"error": err.Error()}
		} else {
			output = result
		}
	}

	data, err := json.Marshal(output)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	if err := c.send(map[string]any{
		"type": EventConversationItemCreate,
		"item": map[string]any{
			"type":    conversation.TypeFunctionCallOutput,
			"call_id": t.CallID,
			"output":  string(data),
		},
	}); err != nil {
		if !errors.Is(err, ErrNotConnected) {
			c.emitError(err)
		}
		return
	}
	if err := c.CreateResponse(); err != nil && !errors.Is(err, ErrNotConnected) {
		c.emitError(err)
	}
}

func (c *Client) emitError(err error) {
	if c.handlers.Error != nil {
		c.handlers.Error(err)
	}
}
