package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/conversation"
)

func created(id, typ, role string) *serverEvent {
	return &serverEvent{Type: EventItemCreated, Item: &wireItem{ID: id, Type: typ, Role: role, Status: "in_progress"}}
}

func TestPCM16RoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 1234}
	out, err := DecodePCM16(EncodePCM16(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodePCM16("not base64!")
	assert.Error(t, err)
}

func TestStoreAssistantAudioStream(t *testing.T) {
	s := newStore(24000)

	_, _, changed, err := s.apply(created("item_a", "message", "assistant"))
	require.NoError(t, err)
	require.True(t, changed)

	it, delta, changed, err := s.apply(&serverEvent{Type: EventResponseAudioDelta, ItemID: "item_a", Delta: EncodePCM16([]int16{1, 2})})
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, []int16{1, 2}, delta.Audio)
	assert.Equal(t, []int16{1, 2}, it.Formatted.Audio)

	_, delta, _, err = s.apply(&serverEvent{Type: EventResponseAudioDelta, ItemID: "item_a", Delta: EncodePCM16([]int16{3})})
	require.NoError(t, err)
	assert.Equal(t, []int16{3}, delta.Audio)

	_, delta, _, err = s.apply(&serverEvent{Type: EventResponseAudioTranscriptDelta, ItemID: "item_a", Delta: "Hel"})
	require.NoError(t, err)
	assert.Equal(t, "Hel", delta.Transcript)
	s.apply(&serverEvent{Type: EventResponseAudioTranscriptDelta, ItemID: "item_a", Delta: "lo"})

	it, delta, _, err = s.apply(&serverEvent{Type: EventResponseOutputItemDone, Item: &wireItem{ID: "item_a", Status: "completed"}})
	require.NoError(t, err)
	assert.Nil(t, delta)
	assert.Equal(t, conversation.StatusCompleted, it.Status)
	assert.Equal(t, "Hello", it.Formatted.Transcript)
	assert.Equal(t, []int16{1, 2, 3}, it.Formatted.Audio)
}

func TestStoreTruncate(t *testing.T) {
	s := newStore(1000)
	s.apply(created("a", "message", "assistant"))
	s.apply(&serverEvent{Type: EventResponseAudioDelta, ItemID: "a", Delta: EncodePCM16(make([]int16, 100))})
	s.apply(&serverEvent{Type: EventResponseAudioTranscriptDelta, ItemID: "a", Delta: "long answer"})

	it, _, _, err := s.apply(&serverEvent{Type: EventItemTruncated, ItemID: "a", AudioEndMs: 40})
	require.NoError(t, err)
	assert.Len(t, it.Formatted.Audio, 40)
	assert.Empty(t, it.Formatted.Transcript)
}

func TestStoreDeleteAndUnknownItems(t *testing.T) {
	s := newStore(24000)
	s.apply(created("a", "message", "assistant"))
	s.apply(created("b", "message", "assistant"))

	_, _, changed, err := s.apply(&serverEvent{Type: EventItemDeleted, ItemID: "a"})
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, s.list(), 1)
	assert.Equal(t, "b", s.list()[0].ID)

	_, _, _, err = s.apply(&serverEvent{Type: EventResponseTextDelta, ItemID: "a", Delta: "x"})
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestStoreUserItemTakesQueuedAudio(t *testing.T) {
	s := newStore(24000)
	s.queueInput([]int16{5, 6, 7})
	it, _, _, err := s.apply(created("u", "message", "user"))
	require.NoError(t, err)
	assert.Equal(t, []int16{5, 6, 7}, it.Formatted.Audio)
	assert.Equal(t, conversation.StatusCompleted, it.Status)

	it, delta, _, err := s.apply(&serverEvent{Type: EventInputTranscriptionCompleted, ItemID: "u", Transcript: "hi there"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", it.Formatted.Transcript)
	assert.Equal(t, "hi there", delta.Transcript)

	it, _, _, _ = s.apply(&serverEvent{Type: EventInputTranscriptionCompleted, ItemID: "u", Transcript: ""})
	assert.Equal(t, " ", it.Formatted.Transcript)
}

func TestStoreUserItemTakesSpeechSpan(t *testing.T) {
	s := newStore(1000)
	input := make([]int16, 500)
	for i := range input {
		input[i] = int16(i)
	}
	s.appendInput(input)

	s.apply(&serverEvent{Type: EventSpeechStarted, ItemID: "u", AudioStartMs: 100})
	s.apply(&serverEvent{Type: EventSpeechStopped, ItemID: "u", AudioEndMs: 300})
	it, _, _, err := s.apply(created("u", "message", "user"))
	require.NoError(t, err)
	require.Len(t, it.Formatted.Audio, 200)
	assert.Equal(t, int16(100), it.Formatted.Audio[0])
	assert.Equal(t, int16(299), it.Formatted.Audio[199])
}

func TestStoreFunctionCall(t *testing.T) {
	s := newStore(24000)
	s.apply(&serverEvent{Type: EventItemCreated, Item: &wireItem{ID: "f", Type: "function_call", Name: "set_memory", CallID: "call_1"}})
	s.apply(&serverEvent{Type: EventResponseFunctionArgumentsDelta, ItemID: "f", Delta: `{"key":`})
	it, _, _, err := s.apply(&serverEvent{Type: EventResponseFunctionArgumentsDelta, ItemID: "f", Delta: `"name"}`})
	require.NoError(t, err)
	require.NotNil(t, it.Formatted.Tool)
	assert.Equal(t, `{"key":"name"}`, it.Formatted.Tool.Arguments)
	assert.Equal(t, conversation.StatusPending, it.Status)

	out, _, _, err := s.apply(&serverEvent{Type: EventItemCreated, Item: &wireItem{ID: "o", Type: "function_call_output", CallID: "call_1", Output: `{"ok":true}`}})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out.Formatted.Output)
	assert.Equal(t, conversation.StatusCompleted, out.Status)
}

func TestStoreResponsesInFlight(t *testing.T) {
	s := newStore(24000)
	assert.False(t, s.responding())
	s.apply(&serverEvent{Type: EventResponseCreated, Response: &wireResponse{ID: "resp_1"}})
	assert.True(t, s.responding())
	s.apply(&serverEvent{Type: EventResponseDone, Response: &wireResponse{ID: "resp_1", Status: "completed"}})
	assert.False(t, s.responding())
}

func TestStoreListIsACopy(t *testing.T) {
	s := newStore(24000)
	s.apply(created("a", "message", "assistant"))
	s.apply(&serverEvent{Type: EventResponseAudioDelta, ItemID: "a", Delta: EncodePCM16([]int16{9})})
	items := s.list()
	items[0].Formatted.Audio[0] = 0
	assert.Equal(t, int16(9), s.list()[0].Formatted.Audio[0])
}
