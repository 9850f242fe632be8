package interfaces

import (
	"context"

	"xiaoqiu/pkg/types"
)

// TokenProvider mints the ephemeral credential for one session.
type TokenProvider interface {
	FetchToken(ctx context.Context) (string, error)
}

// Negotiator exchanges the local SDP offer for a remote answer using the
// ephemeral credential. Transports that emit an empty offer skip this step.
type Negotiator interface {
	Exchange(ctx context.Context, offerSDP, token string) (string, error)
}

// LessonProvider serves curriculum content.
type LessonProvider interface {
	Lessons(ctx context.Context, level int) ([]types.Lesson, error)
	Words(ctx context.Context, level int) ([]types.Phrase, error)
}

// MemoryStore persists long-term learner memory across sessions.
type MemoryStore interface {
	// Fetch returns the stored memory summary, or "" for a new learner.
	Fetch(ctx context.Context, userID string) (string, error)
	Store(ctx context.Context, userID string, transcript []types.TranscriptEntry) error
}
