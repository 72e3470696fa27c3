package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/conversation"
	"parley/eventlog"
)

type fakeServer struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	headers  chan http.Header
	received chan map[string]any
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		conns:    make(chan *websocket.Conn, 1),
		headers:  make(chan http.Header, 1),
		received: make(chan map[string]any, 256),
	}
	var upgrader websocket.Upgrader
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.headers <- r.Header.Clone()
		fs.conns <- conn
		for {
			var m map[string]any
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			fs.received <- m
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-fs.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

// next returns the next client event of type typ, skipping others.
func (fs *fakeServer) next(t *testing.T, typ string) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-fs.received:
			if m["type"] == typ {
				return m
			}
		case <-deadline:
			t.Fatalf("no %s event", typ)
			return nil
		}
	}
}

type recorder struct {
	mu          sync.Mutex
	events      []eventlog.Event
	errs        chan error
	interrupted chan struct{}
	updates     chan update
}

type update struct {
	item  conversation.Item
	delta *conversation.Delta
}

func newRecorder() *recorder {
	return &recorder{
		errs:        make(chan error, 16),
		interrupted: make(chan struct{}, 16),
		updates:     make(chan update, 64),
	}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		RealtimeEvent: func(ev eventlog.Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		},
		Error:                   func(err error) { r.errs <- err },
		ConversationInterrupted: func() { r.interrupted <- struct{}{} },
		ConversationUpdated: func(item conversation.Item, delta *conversation.Delta) {
			r.updates <- update{item, delta}
		},
	}
}

func (r *recorder) nextUpdate(t *testing.T) update {
	t.Helper()
	select {
	case u := <-r.updates:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no conversation update")
		return update{}
	}
}

func connectClient(t *testing.T, session SessionConfig) (*Client, *fakeServer, *websocket.Conn, *recorder) {
	t.Helper()
	fs := newFakeServer(t)
	rec := newRecorder()
	c := NewClient(Config{URL: fs.url(), APIKey: "sk-test", SampleRate: 24000, Session: session}, rec.handlers())
	require.NoError(t, c.AddTool(ToolDefinition{Name: "set_memory"}, func(args map[string]any) (any, error) {
		return map[string]any{"ok": true, "key": args["key"]}, nil
	}))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Disconnect() })
	return c, fs, fs.conn(t), rec
}

func send(t *testing.T, conn *websocket.Conn, ev map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ev))
}

func TestConnectSendsSession(t *testing.T) {
	c, fs, _, _ := connectClient(t, SessionConfig{Instructions: "be brief"})
	assert.True(t, c.IsConnected())

	h := <-fs.headers
	assert.Equal(t, "Bearer sk-test", h.Get("Authorization"))
	assert.Equal(t, "realtime=v1", h.Get("OpenAI-Beta"))

	m := fs.next(t, EventSessionUpdate)
	assert.True(t, strings.HasPrefix(m["event_id"].(string), "evt_"))
	sess := m["session"].(map[string]any)
	assert.Equal(t, "be brief", sess["instructions"])
	assert.Contains(t, sess, "turn_detection")
	assert.Nil(t, sess["turn_detection"], "manual turns are sent as null")
	tools := sess["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "set_memory", tools[0].(map[string]any)["name"])
}

func TestUpdateSessionWhileConnected(t *testing.T) {
	c, fs, _, _ := connectClient(t, SessionConfig{})
	fs.next(t, EventSessionUpdate)

	require.NoError(t, c.UpdateSession(func(s *SessionConfig) { s.TurnDetection = ServerVAD() }))
	assert.Equal(t, TurnDetectionServerVAD, c.TurnDetectionType())
	sess := fs.next(t, EventSessionUpdate)["session"].(map[string]any)
	assert.Equal(t, "server_vad", sess["turn_detection"].(map[string]any)["type"])
}

func TestServerEventsUpdateConversation(t *testing.T) {
	c, _, conn, rec := connectClient(t, SessionConfig{})

	send(t, conn, map[string]any{"type": EventItemCreated, "item": map[string]any{"id": "item_a", "type": "message", "role": "assistant", "status": "in_progress"}})
	u := rec.nextUpdate(t)
	assert.Equal(t, "item_a", u.item.ID)
	assert.Nil(t, u.delta)

	send(t, conn, map[string]any{"type": EventResponseAudioDelta, "item_id": "item_a", "delta": EncodePCM16([]int16{4, 5})})
	u = rec.nextUpdate(t)
	require.NotNil(t, u.delta)
	assert.Equal(t, []int16{4, 5}, u.delta.Audio)

	send(t, conn, map[string]any{"type": EventSpeechStarted, "item_id": "item_u", "audio_start_ms": 0})
	select {
	case <-rec.interrupted:
	case <-time.After(2 * time.Second):
		t.Fatal("no interruption")
	}

	require.Len(t, c.Items(), 1)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var server int
	for _, ev := range rec.events {
		if ev.Source == eventlog.SourceServer {
			server++
		}
	}
	assert.Equal(t, 3, server)
}

func TestServerErrorEvent(t *testing.T) {
	_, _, conn, rec := connectClient(t, SessionConfig{})
	send(t, conn, map[string]any{"type": EventTypeError, "error": map[string]any{"type": "invalid_request_error", "code": "bad", "message": "nope"}})

	select {
	case err := <-rec.errs:
		var rerr *Error
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, "bad", rerr.Code)
		assert.Equal(t, "realtime: bad: nope", err.Error())
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
}

func TestCancelResponse(t *testing.T) {
	c, fs, conn, rec := connectClient(t, SessionConfig{})
	fs.next(t, EventSessionUpdate)

	err := c.CancelResponse("missing", 100)
	assert.ErrorIs(t, err, ErrItemNotFound)

	send(t, conn, map[string]any{"type": EventResponseCreated, "response": map[string]any{"id": "resp_1"}})
	send(t, conn, map[string]any{"type": EventItemCreated, "item": map[string]any{"id": "item_a", "type": "message", "role": "assistant"}})
	rec.nextUpdate(t)

	require.NoError(t, c.CancelResponse("item_a", 36000))
	fs.next(t, EventResponseCancel)
	m := fs.next(t, EventConversationItemTruncate)
	assert.Equal(t, "item_a", m["item_id"])
	assert.Equal(t, 1500.0, m["audio_end_ms"])
}

func TestManualResponseCommitsInput(t *testing.T) {
	c, fs, _, _ := connectClient(t, SessionConfig{})
	fs.next(t, EventSessionUpdate)

	require.NoError(t, c.AppendInputAudio([]int16{1, 2, 3}))
	require.NoError(t, c.AppendInputAudio(nil))
	m := fs.next(t, EventInputAudioBufferAppend)
	samples, err := DecodePCM16(m["audio"].(string))
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3}, samples)

	require.NoError(t, c.CreateResponse())
	fs.next(t, EventInputAudioBufferCommit)
	fs.next(t, EventResponseCreate)
}

func TestToolCallReturnsOutput(t *testing.T) {
	_, fs, conn, _ := connectClient(t, SessionConfig{})
	fs.next(t, EventSessionUpdate)

	send(t, conn, map[string]any{"type": EventItemCreated, "item": map[string]any{"id": "f1", "type": "function_call", "name": "set_memory", "call_id": "call_1"}})
	send(t, conn, map[string]any{"type": EventResponseFunctionArgumentsDelta, "item_id": "f1", "delta": `{"key":"name","value":"Ada"}`})
	send(t, conn, map[string]any{"type": EventResponseOutputItemDone, "item": map[string]any{"id": "f1", "type": "function_call", "status": "completed"}})

	m := fs.next(t, EventConversationItemCreate)
	item := m["item"].(map[string]any)
	assert.Equal(t, "function_call_output", item["type"])
	assert.Equal(t, "call_1", item["call_id"])
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(item["output"].(string)), &out))
	assert.Equal(t, "name", out["key"])
	fs.next(t, EventResponseCreate)
}

func TestDisconnectAndSendFails(t *testing.T) {
	c, _, _, rec := connectClient(t, SessionConfig{})
	require.NoError(t, c.Disconnect())
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.CreateResponse(), ErrNotConnected)
	assert.Empty(t, c.Items())

	select {
	case err := <-rec.errs:
		t.Fatalf("local disconnect reported %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnectFailure(t *testing.T) {
	c := NewClient(Config{URL: "ws://127.0.0.1:1"}, Handlers{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, c.Connect(ctx))
	assert.False(t, c.IsConnected())
}
