package realtime

import (
	"encoding/json"
	"fmt"
)

// Event is one decoded upstream server event. Decoding into a closed set
// of variants lets relay handling be an exhaustive type switch instead of
// a string-keyed dispatch.
type Event interface {
	isEvent()
}

// envelope is the minimal first-pass decode used to pick the variant.
type envelope struct {
	Type string `json:"type"`
}

// SessionCreated is emitted once when the upstream session is established.
type SessionCreated struct {
	EventID string `json:"event_id"`
	Session struct {
		ID    string `json:"id"`
		Model string `json:"model"`
	} `json:"session"`
}

// SessionUpdated acknowledges a session.update command.
type SessionUpdated struct {
	EventID string `json:"event_id"`
}

// AudioDelta carries one base64 PCM16 fragment of synthesized speech.
type AudioDelta struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

// AudioDone signals that no more audio fragments follow for the response.
type AudioDone struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
}

// TranscriptDelta carries incremental transcript text for spoken output.
type TranscriptDelta struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

// TranscriptDone carries the complete transcript of spoken output.
type TranscriptDone struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// ResponseDone marks the end of a response lifecycle.
type ResponseDone struct {
	Response struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"response"`
}

// FunctionCallArgumentsDone delivers a complete tool invocation request.
type FunctionCallArgumentsDone struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
}

// ErrorEvent reports an upstream failure.
type ErrorEvent struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Unknown wraps event types this package does not model.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (SessionCreated) isEvent()            {}
func (SessionUpdated) isEvent()            {}
func (AudioDelta) isEvent()                {}
func (AudioDone) isEvent()                 {}
func (TranscriptDelta) isEvent()           {}
func (TranscriptDone) isEvent()            {}
func (ResponseDone) isEvent()              {}
func (FunctionCallArgumentsDone) isEvent() {}
func (ErrorEvent) isEvent()                {}
func (Unknown) isEvent()                   {}

// Upstream event type names.
const (
	typeSessionCreated            = "session.created"
	typeSessionUpdated            = "session.updated"
	typeAudioDelta                = "response.audio.delta"
	typeAudioDone                 = "response.audio.done"
	typeTranscriptDelta           = "response.audio_transcript.delta"
	typeTranscriptDone            = "response.audio_transcript.done"
	typeResponseDone              = "response.done"
	typeFunctionCallArgumentsDone = "response.function_call_arguments.done"
	typeError                     = "error"
)

// ParseEvent decodes one upstream frame into its event variant. Unmodeled
// event types decode into Unknown so new upstream events never break the
// relay loop.
func ParseEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	var target Event
	switch env.Type {
	case typeSessionCreated:
		target = &SessionCreated{}
	case typeSessionUpdated:
		target = &SessionUpdated{}
	case typeAudioDelta:
		target = &AudioDelta{}
	case typeAudioDone:
		target = &AudioDone{}
	case typeTranscriptDelta:
		target = &TranscriptDelta{}
	case typeTranscriptDone:
		target = &TranscriptDone{}
	case typeResponseDone:
		target = &ResponseDone{}
	case typeFunctionCallArgumentsDone:
		target = &FunctionCallArgumentsDone{}
	case typeError:
		target = &ErrorEvent{}
	default:
		return &Unknown{Type: env.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", env.Type, err)
	}
	return target, nil
}
