package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEventCodec_EncodeAssignsEventID(t *testing.T) {
	codec := NewEventCodec()

	event := NewResponseCreate()
	data, err := codec.Encode(event)
	if err != nil {
		t.Fatalf("Encode should succeed: %v", err)
	}

	if event.EventID == "" {
		t.Error("Encode should assign an event ID")
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Encoded frame should be valid JSON: %v", err)
	}

	if decoded["type"] != TypeResponseCreate {
		t.Errorf("Expected type %s, got %v", TypeResponseCreate, decoded["type"])
	}

	if decoded["event_id"] != event.EventID {
		t.Errorf("Expected event_id %s, got %v", event.EventID, decoded["event_id"])
	}

	// Caller-supplied IDs are preserved.
	event = &ClientEvent{EventID: "evt-1", Type: TypeResponseCreate}
	if _, err := codec.Encode(event); err != nil {
		t.Fatalf("Encode should succeed: %v", err)
	}
	if event.EventID != "evt-1" {
		t.Errorf("Expected event ID evt-1 to be preserved, got %s", event.EventID)
	}
}

func TestEventCodec_EncodeRejectsInvalid(t *testing.T) {
	codec := NewEventCodec()

	if _, err := codec.Encode(nil); err == nil {
		t.Error("Encoding nil event should fail")
	}

	if _, err := codec.Encode(&ClientEvent{}); err == nil {
		t.Error("Encoding event without type should fail")
	}
}

func TestEventCodec_EncodeSessionUpdateOmitsUnsetFields(t *testing.T) {
	codec := NewEventCodec()

	event := NewSessionUpdate(&SessionPayload{
		Modalities: []string{"text", "audio"},
		Tools:      []Tool{{Type: "function", Name: "endSession"}},
	})
	data, err := codec.Encode(event)
	if err != nil {
		t.Fatalf("Encode should succeed: %v", err)
	}

	var decoded struct {
		Session map[string]any `json:"session"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Encoded frame should be valid JSON: %v", err)
	}

	// An empty instructions value would wipe the session's instructions
	// on the remote side, so the key must not appear at all.
	for _, key := range []string{"instructions", "voice", "tool_choice"} {
		if v, present := decoded.Session[key]; present {
			t.Errorf("Unset field %s should be omitted, got %v", key, v)
		}
	}

	event = NewSessionUpdate(&SessionPayload{
		Modalities:   []string{"text"},
		Instructions: "Speak slowly.",
	})
	data, err = codec.Encode(event)
	if err != nil {
		t.Fatalf("Encode should succeed: %v", err)
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Encoded frame should be valid JSON: %v", err)
	}
	if decoded.Session["instructions"] != "Speak slowly." {
		t.Errorf("Set instructions should survive encoding, got %v", decoded.Session["instructions"])
	}
}

func TestEventCodec_EncodeUserText(t *testing.T) {
	codec := NewEventCodec()

	data, err := codec.Encode(NewUserText("你好"))
	if err != nil {
		t.Fatalf("Encode should succeed: %v", err)
	}

	frame := string(data)
	if !strings.Contains(frame, `"conversation.item.create"`) {
		t.Errorf("Frame should carry item create type: %s", frame)
	}
	if !strings.Contains(frame, `"input_text"`) {
		t.Errorf("Frame should carry input_text content: %s", frame)
	}
	if !strings.Contains(frame, "你好") {
		t.Errorf("Frame should carry the text: %s", frame)
	}
}

func TestEventCodec_EncodeFunctionOutput(t *testing.T) {
	codec := NewEventCodec()

	data, err := codec.Encode(NewFunctionOutput("call-7", `{"success":true}`))
	if err != nil {
		t.Fatalf("Encode should succeed: %v", err)
	}

	frame := string(data)
	if !strings.Contains(frame, `"function_call_output"`) {
		t.Errorf("Frame should carry function_call_output item: %s", frame)
	}
	if !strings.Contains(frame, `"call_id":"call-7"`) {
		t.Errorf("Frame should carry the call ID: %s", frame)
	}
}

func TestEventCodec_DecodeTranscriptDelta(t *testing.T) {
	codec := NewEventCodec()

	event, err := codec.Decode([]byte(`{"type":"response.audio_transcript.delta","delta":"很好"}`))
	if err != nil {
		t.Fatalf("Decode should succeed: %v", err)
	}

	delta, ok := event.(TranscriptDeltaEvent)
	if !ok {
		t.Fatalf("Expected TranscriptDeltaEvent, got %T", event)
	}
	if delta.Delta != "很好" {
		t.Errorf("Expected delta 很好, got %s", delta.Delta)
	}
}

func TestEventCodec_DecodeFunctionCall(t *testing.T) {
	codec := NewEventCodec()

	frame := `{"type":"response.function_call_arguments.done","name":"checkChineseGuessCorrect","call_id":"call-3","arguments":"{\"word\":\"苹果\"}"}`
	event, err := codec.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode should succeed: %v", err)
	}

	call, ok := event.(FunctionCallEvent)
	if !ok {
		t.Fatalf("Expected FunctionCallEvent, got %T", event)
	}
	if call.Name != "checkChineseGuessCorrect" {
		t.Errorf("Expected name checkChineseGuessCorrect, got %s", call.Name)
	}
	if call.CallID != "call-3" {
		t.Errorf("Expected call ID call-3, got %s", call.CallID)
	}
	if call.Arguments != `{"word":"苹果"}` {
		t.Errorf("Unexpected arguments: %s", call.Arguments)
	}
}

func TestEventCodec_DecodeResponseDone(t *testing.T) {
	codec := NewEventCodec()

	frame := `{"type":"response.done","response":{"output":[{"content":[{"transcript":"今天我们学水果。"}]}]}}`
	event, err := codec.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode should succeed: %v", err)
	}

	done, ok := event.(ResponseDoneEvent)
	if !ok {
		t.Fatalf("Expected ResponseDoneEvent, got %T", event)
	}
	if done.Transcript != "今天我们学水果。" {
		t.Errorf("Unexpected transcript: %s", done.Transcript)
	}

	// Turns without audio output decode with an empty transcript.
	event, err = codec.Decode([]byte(`{"type":"response.done","response":{"output":[]}}`))
	if err != nil {
		t.Fatalf("Decode should succeed: %v", err)
	}
	if done := event.(ResponseDoneEvent); done.Transcript != "" {
		t.Errorf("Expected empty transcript, got %s", done.Transcript)
	}
}

func TestEventCodec_DecodeInputTranscription(t *testing.T) {
	codec := NewEventCodec()

	frame := `{"type":"conversation.item.input_audio_transcription.completed","transcript":"我喜欢苹果"}`
	event, err := codec.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode should succeed: %v", err)
	}

	in, ok := event.(InputTranscriptionEvent)
	if !ok {
		t.Fatalf("Expected InputTranscriptionEvent, got %T", event)
	}
	if in.Transcript != "我喜欢苹果" {
		t.Errorf("Unexpected transcript: %s", in.Transcript)
	}
}

func TestEventCodec_DecodeErrors(t *testing.T) {
	codec := NewEventCodec()

	event, err := codec.Decode([]byte(`{"type":"error","error":{"message":"rate limited"}}`))
	if err != nil {
		t.Fatalf("Decode should succeed: %v", err)
	}
	serverErr, ok := event.(ServerErrorEvent)
	if !ok {
		t.Fatalf("Expected ServerErrorEvent, got %T", event)
	}
	if serverErr.Message != "rate limited" {
		t.Errorf("Unexpected message: %s", serverErr.Message)
	}

	// session.error uses a flat message field.
	event, err = codec.Decode([]byte(`{"type":"session.error","message":"expired"}`))
	if err != nil {
		t.Fatalf("Decode should succeed: %v", err)
	}
	if serverErr := event.(ServerErrorEvent); serverErr.Message != "expired" {
		t.Errorf("Unexpected message: %s", serverErr.Message)
	}
}

func TestEventCodec_DecodeUnknownAndMalformed(t *testing.T) {
	codec := NewEventCodec()

	event, err := codec.Decode([]byte(`{"type":"rate_limits.updated","rate_limits":[]}`))
	if err != nil {
		t.Fatalf("Unknown types should decode, got error: %v", err)
	}
	unknown, ok := event.(UnknownEvent)
	if !ok {
		t.Fatalf("Expected UnknownEvent, got %T", event)
	}
	if unknown.Type != "rate_limits.updated" {
		t.Errorf("Unexpected unknown type: %s", unknown.Type)
	}

	if _, err := codec.Decode([]byte(`not json`)); err == nil {
		t.Error("Invalid JSON should fail to decode")
	}

	if _, err := codec.Decode([]byte(`{"delta":"hi"}`)); err == nil {
		t.Error("Frame without type should fail to decode")
	}
}
