package protocol

import "encoding/json"

// Client → relay message types on the downstream socket. Frames that do
// not parse as JSON are treated as raw PCM16 audio.
const (
	ClientMsgAudio       = "audio"
	ClientMsgCommitAudio = "commit_audio"
	ClientMsgCancel      = "cancel"
)

// ClientMessage is the downstream JSON envelope sent by the voice client.
type ClientMessage struct {
	Type string `json:"type"`
	// Audio carries a base64-encoded WAV container for "audio" messages.
	Audio string `json:"audio,omitempty"`
}

// Relay → client message types, alongside upstream events forwarded
// verbatim (response.audio.delta and friends keep their upstream names).
const (
	ServerMsgSessionReady = "session_ready"
	ServerMsgToolExecuted = "tool_executed"
	ServerMsgError        = "error"
)

// SessionReady announces that the upstream session exists and the relay
// accepts audio. Sent exactly once per session.
type SessionReady struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// ToolExecuted informs the client that a tool call ran, for UI display.
type ToolExecuted struct {
	Type string          `json:"type"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ErrorMessage is the sanitized error shape surfaced to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
