package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EventCodec translates between wire frames and typed events. It is
// stateless and safe for concurrent use.
type EventCodec struct{}

func NewEventCodec() *EventCodec {
	return &EventCodec{}
}

// Encode serializes one outbound event, assigning a fresh event ID when
// the caller left it empty.
func (c *EventCodec) Encode(event *ClientEvent) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("cannot encode nil event")
	}

	if event.Type == "" {
		return nil, fmt.Errorf("cannot encode event without type")
	}

	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	return data, nil
}

// envelope is the minimal shape shared by every inbound frame.
type envelope struct {
	Type string `json:"type"`
}

// Decode parses one inbound frame into its typed event. Frames with an
// unrecognized type decode to UnknownEvent; frames that are not valid
// JSON, or that lack a type, return an error.
func (c *EventCodec) Decode(data []byte) (ServerEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	if env.Type == "" {
		return nil, fmt.Errorf("malformed frame: missing type")
	}

	switch env.Type {
	case TypeTranscriptDelta:
		var frame struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", env.Type, err)
		}
		return TranscriptDeltaEvent{Delta: frame.Delta}, nil

	case TypeItemCreated:
		var frame struct {
			Item struct {
				ID      string `json:"id"`
				Role    string `json:"role"`
				Content []struct {
					Text       string `json:"text"`
					Transcript string `json:"transcript"`
				} `json:"content"`
			} `json:"item"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", env.Type, err)
		}
		event := ItemCreatedEvent{ItemID: frame.Item.ID, Role: frame.Item.Role}
		if len(frame.Item.Content) > 0 {
			event.Text = frame.Item.Content[0].Text
			if event.Text == "" {
				event.Text = frame.Item.Content[0].Transcript
			}
		}
		return event, nil

	case TypeFunctionCallDone:
		var frame struct {
			Name      string `json:"name"`
			CallID    string `json:"call_id"`
			Arguments string `json:"arguments"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", env.Type, err)
		}
		return FunctionCallEvent{Name: frame.Name, CallID: frame.CallID, Arguments: frame.Arguments}, nil

	case TypeResponseDone:
		var frame struct {
			Response struct {
				Output []struct {
					Content []struct {
						Transcript string `json:"transcript"`
					} `json:"content"`
				} `json:"output"`
			} `json:"response"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", env.Type, err)
		}
		event := ResponseDoneEvent{}
		if len(frame.Response.Output) > 0 && len(frame.Response.Output[0].Content) > 0 {
			event.Transcript = frame.Response.Output[0].Content[0].Transcript
		}
		return event, nil

	case TypeInputTranscriptionDone:
		var frame struct {
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", env.Type, err)
		}
		return InputTranscriptionEvent{Transcript: frame.Transcript}, nil

	case TypeSessionEnded:
		var frame struct {
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", env.Type, err)
		}
		return SessionEndedEvent{Reason: frame.Reason}, nil

	case TypeError, TypeSessionError:
		var frame struct {
			Message string `json:"message"`
			Error   struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", env.Type, err)
		}
		message := frame.Error.Message
		if message == "" {
			message = frame.Message
		}
		return ServerErrorEvent{Type: env.Type, Message: message}, nil

	default:
		return UnknownEvent{Type: env.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
