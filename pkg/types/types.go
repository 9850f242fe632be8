package types

import (
	"time"
)

// Practice mode constants. The mode decides which settings start() requires
// and which tools the remote tutor may call.
const (
	ModeTalk   = "talk"
	ModeLesson = "lesson"
	ModePlay   = "play"
)

// Game type constants for play mode.
const (
	GameTypeGuess         = "guess"
	GameTypeReverse       = "reverse"
	GameTypeSentenceMaker = "sentence-maker"
)

// SessionState tracks the session lifecycle. The transport handle is non-nil
// exactly while the state is Negotiating..Closing.
type SessionState int

const (
	StateIdle SessionState = iota
	StateNegotiating
	StateAwaitingAnswer
	StateOpen
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnState is the transport's connection/ICE state as observed by the
// controller. Disconnected, Failed and Closed are fatal for the session.
type ConnState int

const (
	ConnNew ConnState = iota
	ConnConnecting
	ConnConnected
	ConnDisconnected
	ConnFailed
	ConnClosed
)

func (c ConnState) String() string {
	switch c {
	case ConnNew:
		return "new"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	case ConnFailed:
		return "failed"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Fatal reports whether the connection state must terminate the session.
func (c ConnState) Fatal() bool {
	return c == ConnDisconnected || c == ConnFailed || c == ConnClosed
}

// Phrase is one vocabulary item of a lesson.
type Phrase struct {
	Chinese string `json:"chinese"`
	Hanzi   string `json:"hanzi,omitempty"`
	Pinyin  string `json:"pinyin"`
	English string `json:"english"`
}

// Key returns the canonical word form used to deduplicate missed items.
func (p Phrase) Key() string {
	if p.Chinese != "" {
		return p.Chinese
	}
	return p.Hanzi
}

// DialogueLine is one line of a lesson's practice conversation.
type DialogueLine struct {
	Character string `json:"character"`
	Chinese   string `json:"chinese"`
	Pinyin    string `json:"pinyin"`
	English   string `json:"english"`
}

// Lesson is one topic as returned by the lesson provider.
type Lesson struct {
	ID           string         `json:"_id"`
	TopicTitle   string         `json:"topicTitle"`
	EnglishTitle string         `json:"englishTitle"`
	NewWords     []Phrase       `json:"newWords"`
	Conversation []DialogueLine `json:"conversation"`
}

// Settings holds the confirmed lesson/game configuration a session starts
// from. It is external input, read-only to the controller.
type Settings struct {
	Mode         string         `json:"mode"`
	Level        int            `json:"level"`
	TopicTitle   string         `json:"topic_title,omitempty"`
	EnglishTitle string         `json:"english_title,omitempty"`
	Phrases      []Phrase       `json:"phrases,omitempty"`
	Conversation []DialogueLine `json:"conversation,omitempty"`
	GameType     string         `json:"game_type,omitempty"`
	GameName     string         `json:"game_name,omitempty"`
	GameDesc     string         `json:"game_desc,omitempty"`
	// TalkWords is the target vocabulary for talk mode at the chosen level.
	TalkWords []Phrase `json:"talk_words,omitempty"`
}

// RequiresProgression reports whether the session tracks per-word game state.
func (s *Settings) RequiresProgression() bool {
	return s.Mode == ModePlay
}

// TranscriptEntry is one turn of the conversation transcript.
type TranscriptEntry struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ConversationRecord is the archived form of a finished session.
type ConversationRecord struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Mode       string            `json:"mode"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
	Transcript []TranscriptEntry `json:"transcript"`
}

// AssessmentRecord is an archived speech-statistics summary.
type AssessmentRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	SpeakingSecs float64   `json:"speaking_secs"`
	SilenceSecs  float64   `json:"silence_secs"`
	WordEstimate int       `json:"word_estimate"`
	WordsPerSec  float64   `json:"words_per_sec"`
}
