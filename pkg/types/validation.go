package types

// Chunk sizes for slicing lesson content into practice units.
const (
	WordChunkSize     = 5
	SentenceChunkSize = 4
)

// Validate ensures the settings are complete enough to start a session in
// their mode. Talk mode needs a level; lesson and play modes need a topic
// (or game type) plus a selected content chunk.
func (s *Settings) Validate() error {
	switch s.Mode {
	case ModeTalk:
		if s.Level < 1 {
			return ErrMissingLevel
		}
		return nil
	case ModeLesson:
		if s.Level < 1 {
			return ErrMissingLevel
		}
		if s.TopicTitle == "" {
			return ErrMissingTopic
		}
		if len(s.Phrases) == 0 && len(s.Conversation) == 0 {
			return ErrMissingContent
		}
		return nil
	case ModePlay:
		if s.GameType == "" {
			return ErrMissingGameType
		}
		if !IsValidGameType(s.GameType) {
			return ErrInvalidGameType
		}
		if s.TopicTitle == "" {
			return ErrMissingTopic
		}
		if len(s.Phrases) == 0 {
			return ErrMissingContent
		}
		return nil
	default:
		return ErrInvalidMode
	}
}

// IsValidGameType checks the game type against the three supported games.
func IsValidGameType(gameType string) bool {
	switch gameType {
	case GameTypeGuess, GameTypeReverse, GameTypeSentenceMaker:
		return true
	default:
		return false
	}
}

// ChunkWords slices a lesson's vocabulary into fixed-size practice chunks.
// The last chunk may be shorter.
func ChunkWords(words []Phrase) [][]Phrase {
	if len(words) == 0 {
		return nil
	}
	chunks := make([][]Phrase, 0, (len(words)+WordChunkSize-1)/WordChunkSize)
	for i := 0; i < len(words); i += WordChunkSize {
		end := i + WordChunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, words[i:end])
	}
	return chunks
}

// ChunkSentences slices a lesson's dialogue into fixed-size practice chunks.
func ChunkSentences(lines []DialogueLine) [][]DialogueLine {
	if len(lines) == 0 {
		return nil
	}
	chunks := make([][]DialogueLine, 0, (len(lines)+SentenceChunkSize-1)/SentenceChunkSize)
	for i := 0; i < len(lines); i += SentenceChunkSize {
		end := i + SentenceChunkSize
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, lines[i:end])
	}
	return chunks
}
