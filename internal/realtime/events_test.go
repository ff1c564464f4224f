package realtime

import (
	"encoding/json"
	"testing"
)

func TestParseEventVariants(t *testing.T) {
	cases := []struct {
		name  string
		data  string
		check func(t *testing.T, ev Event)
	}{
		{
			name: "session created",
			data: `{"type":"session.created","event_id":"ev_1","session":{"id":"sess_1","model":"gpt-4o-realtime-preview"}}`,
			check: func(t *testing.T, ev Event) {
				created, ok := ev.(*SessionCreated)
				if !ok {
					t.Fatalf("expected *SessionCreated, got %T", ev)
				}
				if created.Session.ID != "sess_1" {
					t.Fatalf("unexpected session id %q", created.Session.ID)
				}
			},
		},
		{
			name: "audio delta",
			data: `{"type":"response.audio.delta","response_id":"r1","delta":"AAAA"}`,
			check: func(t *testing.T, ev Event) {
				delta, ok := ev.(*AudioDelta)
				if !ok {
					t.Fatalf("expected *AudioDelta, got %T", ev)
				}
				if delta.Delta != "AAAA" {
					t.Fatalf("unexpected delta %q", delta.Delta)
				}
			},
		},
		{
			name: "function call arguments done",
			data: `{"type":"response.function_call_arguments.done","call_id":"call_1","name":"create_task","arguments":"{\"title\":\"buy milk\"}"}`,
			check: func(t *testing.T, ev Event) {
				call, ok := ev.(*FunctionCallArgumentsDone)
				if !ok {
					t.Fatalf("expected *FunctionCallArgumentsDone, got %T", ev)
				}
				if call.CallID != "call_1" || call.Name != "create_task" {
					t.Fatalf("unexpected call %+v", call)
				}
			},
		},
		{
			name: "error",
			data: `{"type":"error","error":{"type":"invalid_request_error","code":"bad_audio","message":"boom"}}`,
			check: func(t *testing.T, ev Event) {
				errEv, ok := ev.(*ErrorEvent)
				if !ok {
					t.Fatalf("expected *ErrorEvent, got %T", ev)
				}
				if errEv.Error.Message != "boom" {
					t.Fatalf("unexpected message %q", errEv.Error.Message)
				}
			},
		},
		{
			name: "unknown type preserved",
			data: `{"type":"rate_limits.updated","rate_limits":[]}`,
			check: func(t *testing.T, ev Event) {
				unknown, ok := ev.(*Unknown)
				if !ok {
					t.Fatalf("expected *Unknown, got %T", ev)
				}
				if unknown.Type != "rate_limits.updated" {
					t.Fatalf("unexpected type %q", unknown.Type)
				}
				if len(unknown.Raw) == 0 {
					t.Fatal("expected raw payload preserved")
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tc.data))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			tc.check(t, ev)
		})
	}
}

func TestParseEventRejectsGarbage(t *testing.T) {
	if _, err := ParseEvent([]byte("not json")); err == nil {
		t.Fatal("expected error for non-JSON frame")
	}
}

func TestSessionUpdateDisablesTurnDetection(t *testing.T) {
	data, err := SessionUpdate(SessionSettings{
		Instructions: "manage tasks",
		Voice:        "alloy",
	})
	if err != nil {
		t.Fatalf("build session.update: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	session, ok := decoded["session"].(map[string]any)
	if !ok {
		t.Fatal("missing session payload")
	}
	td, present := session["turn_detection"]
	if !present {
		t.Fatal("turn_detection must be present and null")
	}
	if td != nil {
		t.Fatalf("turn_detection must be null, got %v", td)
	}
	if session["input_audio_format"] != "pcm16" || session["output_audio_format"] != "pcm16" {
		t.Fatalf("expected pcm16 formats, got %v / %v", session["input_audio_format"], session["output_audio_format"])
	}
}

func TestFunctionCallOutputShape(t *testing.T) {
	data, err := FunctionCallOutput("call_9", `{"ok":true}`)
	if err != nil {
		t.Fatalf("build function_call_output: %v", err)
	}
	var decoded struct {
		Type string `json:"type"`
		Item struct {
			Type   string `json:"type"`
			CallID string `json:"call_id"`
			Output string `json:"output"`
		} `json:"item"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if decoded.Type != "conversation.item.create" {
		t.Fatalf("unexpected command type %q", decoded.Type)
	}
	if decoded.Item.Type != "function_call_output" || decoded.Item.CallID != "call_9" {
		t.Fatalf("unexpected item %+v", decoded.Item)
	}
}
