package protocol

import "encoding/json"

// Wire event type names.
const (
	TypeSessionUpdate          = "session.update"
	TypeItemCreate             = "conversation.item.create"
	TypeResponseCreate         = "response.create"
	TypeTranscriptDelta        = "response.audio_transcript.delta"
	TypeItemCreated            = "conversation.item.created"
	TypeFunctionCallDone       = "response.function_call_arguments.done"
	TypeResponseDone           = "response.done"
	TypeInputTranscriptionDone = "conversation.item.input_audio_transcription.completed"
	TypeSessionEnded           = "session.ended"
	TypeError                  = "error"
	TypeSessionError           = "session.error"
)

// Tool describes one callable function advertised in the session update.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SessionPayload is the session.update body. Optional fields are
// omitted when unset; on this protocol an empty instructions string
// would overwrite the session's instructions rather than leave them.
type SessionPayload struct {
	Modalities       []string           `json:"modalities"`
	Instructions     string             `json:"instructions,omitempty"`
	Voice            string             `json:"voice,omitempty"`
	InputTranscriber *TranscriberConfig `json:"input_audio_transcription,omitempty"`
	Tools            []Tool             `json:"tools,omitempty"`
	ToolChoice       string             `json:"tool_choice,omitempty"`
}

// TranscriberConfig selects the model transcribing learner speech.
type TranscriberConfig struct {
	Model string `json:"model"`
}

// ContentPart is one content block inside a conversation item.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// ItemPayload is the conversation.item.create body.
type ItemPayload struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

// ClientEvent is an outbound wire event. EventID is assigned by the codec
// when empty so every sent event is traceable.
type ClientEvent struct {
	EventID string          `json:"event_id,omitempty"`
	Type    string          `json:"type"`
	Session *SessionPayload `json:"session,omitempty"`
	Item    *ItemPayload    `json:"item,omitempty"`
}

// NewSessionUpdate builds the session.update sent on channel open.
func NewSessionUpdate(session *SessionPayload) *ClientEvent {
	return &ClientEvent{Type: TypeSessionUpdate, Session: session}
}

// NewUserText builds a conversation.item.create carrying learner text.
func NewUserText(text string) *ClientEvent {
	return &ClientEvent{
		Type: TypeItemCreate,
		Item: &ItemPayload{
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

// NewFunctionOutput builds the function_call_output item answering one
// tool call, correlated by call ID.
func NewFunctionOutput(callID, output string) *ClientEvent {
	return &ClientEvent{
		Type: TypeItemCreate,
		Item: &ItemPayload{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

// NewResponseCreate builds the response.create that asks the model to
// continue after new input.
func NewResponseCreate() *ClientEvent {
	return &ClientEvent{Type: TypeResponseCreate}
}

// ServerEvent is an inbound wire event decoded into its typed form.
type ServerEvent interface {
	serverEventType() string
}

// TranscriptDeltaEvent streams one chunk of assistant speech transcript.
type TranscriptDeltaEvent struct {
	Delta string
}

func (e TranscriptDeltaEvent) serverEventType() string { return TypeTranscriptDelta }

// ItemCreatedEvent acknowledges a conversation item the server accepted.
type ItemCreatedEvent struct {
	ItemID string
	Role   string
	Text   string
}

func (e ItemCreatedEvent) serverEventType() string { return TypeItemCreated }

// FunctionCallEvent carries one completed tool invocation request.
type FunctionCallEvent struct {
	Name      string
	CallID    string
	Arguments string
}

func (e FunctionCallEvent) serverEventType() string { return TypeFunctionCallDone }

// ResponseDoneEvent marks the end of one assistant turn with its full
// transcript, when the turn produced audio output.
type ResponseDoneEvent struct {
	Transcript string
}

func (e ResponseDoneEvent) serverEventType() string { return TypeResponseDone }

// InputTranscriptionEvent carries the finished transcription of one
// learner utterance.
type InputTranscriptionEvent struct {
	Transcript string
}

func (e InputTranscriptionEvent) serverEventType() string { return TypeInputTranscriptionDone }

// SessionEndedEvent signals a server-initiated session end.
type SessionEndedEvent struct {
	Reason string
}

func (e SessionEndedEvent) serverEventType() string { return TypeSessionEnded }

// ServerErrorEvent is a fatal error reported by the server.
type ServerErrorEvent struct {
	Type    string
	Message string
}

func (e ServerErrorEvent) serverEventType() string { return e.Type }

// UnknownEvent preserves events this client does not handle.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) serverEventType() string { return e.Type }
