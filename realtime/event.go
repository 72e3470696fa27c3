package realtime

// Client events.
const (
	EventSessionUpdate            = "session.update"
	EventInputAudioBufferAppend   = "input_audio_buffer.append"
	EventInputAudioBufferCommit   = "input_audio_buffer.commit"
	EventConversationItemCreate   = "conversation.item.create"
	EventConversationItemDelete   = "conversation.item.delete"
	EventConversationItemTruncate = "conversation.item.truncate"
	EventResponseCreate           = "response.create"
	EventResponseCancel           = "response.cancel"
)

// Server events.
const (
	EventTypeError                      = "error"
	EventSessionCreated                 = "session.created"
	EventSessionUpdated                 = "session.updated"
	EventItemCreated                    = "conversation.item.created"
	EventItemTruncated                  = "conversation.item.truncated"
	EventItemDeleted                    = "conversation.item.deleted"
	EventInputTranscriptionCompleted    = "conversation.item.input_audio_transcription.completed"
	EventSpeechStarted                  = "input_audio_buffer.speech_started"
	EventSpeechStopped                  = "input_audio_buffer.speech_stopped"
	EventResponseCreated                = "response.created"
	EventResponseDone                   = "response.done"
	EventResponseOutputItemAdded        = "response.output_item.added"
	EventResponseOutputItemDone         = "response.output_item.done"
	EventResponseTextDelta              = "response.text.delta"
	EventResponseAudioTranscriptDelta   = "response.audio_transcript.delta"
	EventResponseAudioDelta             = "response.audio.delta"
	EventResponseFunctionArgumentsDelta = "response.function_call_arguments.delta"
)

// serverEvent holds the fields of a server event this client acts on.
type serverEvent struct {
	EventID      string        `json:"event_id"`
	Type         string        `json:"type"`
	Item         *wireItem     `json:"item"`
	ItemID       string        `json:"item_id"`
	ContentIndex int           `json:"content_index"`
	AudioStartMs int           `json:"audio_start_ms"`
	AudioEndMs   int           `json:"audio_end_ms"`
	Transcript   string        `json:"transcript"`
	Delta        string        `json:"delta"`
	Response     *wireResponse `json:"response"`
	ResponseID   string        `json:"response_id"`
	Error        *EventError   `json:"error"`
}

type wireItem struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Role      string        `json:"role"`
	Status    string        `json:"status"`
	Name      string        `json:"name"`
	CallID    string        `json:"call_id"`
	Arguments string        `json:"arguments"`
	Output    string        `json:"output"`
	Content   []wireContent `json:"content"`
}

type wireContent struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
}

type wireResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
