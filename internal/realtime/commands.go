package realtime

import "encoding/json"

// Tool describes one function the model may call, in the upstream
// session schema.
type Tool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// SessionSettings is the payload of a session.update command.
type SessionSettings struct {
	Modalities        []string `json:"modalities"`
	Instructions      string   `json:"instructions"`
	Voice             string   `json:"voice"`
	InputAudioFormat  string   `json:"input_audio_format"`
	OutputAudioFormat string   `json:"output_audio_format"`
	Temperature       float64  `json:"temperature,omitempty"`
	Tools             []Tool   `json:"tools,omitempty"`
	ToolChoice        string   `json:"tool_choice,omitempty"`
	// TurnDetection stays null: turn taking is driven by explicit commit
	// commands, not by server-side voice activity detection.
	TurnDetection *struct{} `json:"turn_detection"`
}

type sessionUpdateCommand struct {
	Type    string          `json:"type"`
	Session SessionSettings `json:"session"`
}

type audioAppendCommand struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type simpleCommand struct {
	Type string `json:"type"`
}

type functionCallOutputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type itemCreateCommand struct {
	Type string                 `json:"type"`
	Item functionCallOutputItem `json:"item"`
}

// SessionUpdate builds the one-time initialization command.
func SessionUpdate(settings SessionSettings) ([]byte, error) {
	if len(settings.Modalities) == 0 {
		settings.Modalities = []string{"text", "audio"}
	}
	if settings.InputAudioFormat == "" {
		settings.InputAudioFormat = "pcm16"
	}
	if settings.OutputAudioFormat == "" {
		settings.OutputAudioFormat = "pcm16"
	}
	return json.Marshal(sessionUpdateCommand{Type: "session.update", Session: settings})
}

// AudioAppend builds an input_audio_buffer.append command carrying
// base64 PCM16 audio.
func AudioAppend(audio string) ([]byte, error) {
	return json.Marshal(audioAppendCommand{Type: "input_audio_buffer.append", Audio: audio})
}

// AudioCommit builds an input_audio_buffer.commit command.
func AudioCommit() ([]byte, error) {
	return json.Marshal(simpleCommand{Type: "input_audio_buffer.commit"})
}

// ResponseCreate asks the upstream to generate a response from the
// committed audio and conversation state.
func ResponseCreate() ([]byte, error) {
	return json.Marshal(simpleCommand{Type: "response.create"})
}

// ResponseCancel aborts the in-flight response (barge-in).
func ResponseCancel() ([]byte, error) {
	return json.Marshal(simpleCommand{Type: "response.cancel"})
}

// FunctionCallOutput builds the conversation item that answers a
// function call request.
func FunctionCallOutput(callID, output string) ([]byte, error) {
	return json.Marshal(itemCreateCommand{
		Type: "conversation.item.create",
		Item: functionCallOutputItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	})
}
