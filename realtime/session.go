package realtime

// SessionConfig is the body of a session.update event.
type SessionConfig struct {
	Modalities              []string                 `json:"modalities,omitempty"`
	Instructions            string                   `json:"instructions,omitempty"`
	Voice                   string                   `json:"voice,omitempty"`
	InputAudioFormat        string                   `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string                   `json:"output_audio_format,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	// TurnDetection is sent as null for manual turns.
	TurnDetection *TurnDetection   `json:"turn_detection"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
}

type InputAudioTranscription struct {
	Model string `json:"model"`
}

type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

const TurnDetectionServerVAD = "server_vad"

// ServerVAD is the default server-side voice activity detection.
func ServerVAD() *TurnDetection {
	return &TurnDetection{Type: TurnDetectionServerVAD}
}

type ToolDefinition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolHandler runs a tool call. Its result is marshalled to JSON and sent
// back to the agent as the call's output.
type ToolHandler func(args map[string]any) (any, error)
