package game

import (
	"errors"
	"sync"

	"xiaoqiu/pkg/types"
)

var (
	ErrNoItems       = errors.New("game has no items")
	ErrNoMissedWords = errors.New("no missed words to review")
	ErrGameFinished  = errors.New("game already finished")
)

// FinishedIndex marks a game with no next item.
const FinishedIndex = -1

// Progress reports the outcome of grading one answer.
type Progress struct {
	NextIndex int
	Finished  bool
}

// Engine tracks progression through one round of a word game. Grading a
// correct answer bumps the score; grading an incorrect one records the
// current item for later review. Either way the game advances, and the
// last item advances to FinishedIndex.
//
// Missed items are deduplicated by their phrase key, preserving first-miss
// order.
type Engine struct {
	mu sync.Mutex

	items        []types.Phrase
	index        int
	correctCount int

	missed     []types.Phrase
	missedKeys map[string]bool
}

func NewEngine(items []types.Phrase) *Engine {
	return &Engine{
		items:      items,
		missedKeys: make(map[string]bool),
	}
}

// Current returns the item being played, or false when the game is
// finished or empty.
func (e *Engine) Current() (types.Phrase, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.index == FinishedIndex || e.index >= len(e.items) {
		return types.Phrase{}, false
	}
	return e.items[e.index], true
}

func (e *Engine) Index() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index
}

func (e *Engine) Total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

func (e *Engine) CorrectCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.correctCount
}

// Correct grades the current item right and advances.
func (e *Engine) Correct() (Progress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.items) == 0 {
		return Progress{}, ErrNoItems
	}
	if e.index == FinishedIndex {
		return Progress{}, ErrGameFinished
	}

	e.correctCount++
	return e.advance(), nil
}

// Incorrect grades the current item wrong, records it as missed, and
// advances.
func (e *Engine) Incorrect() (Progress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.items) == 0 {
		return Progress{}, ErrNoItems
	}
	if e.index == FinishedIndex {
		return Progress{}, ErrGameFinished
	}

	current := e.items[e.index]
	if key := current.Key(); !e.missedKeys[key] {
		e.missedKeys[key] = true
		e.missed = append(e.missed, current)
	}

	return e.advance(), nil
}

// advance moves to the next item. Callers hold the lock.
func (e *Engine) advance() Progress {
	if e.index >= len(e.items)-1 {
		e.index = FinishedIndex
		return Progress{NextIndex: FinishedIndex, Finished: true}
	}
	e.index++
	return Progress{NextIndex: e.index}
}

// Missed returns the missed items in first-miss order.
func (e *Engine) Missed() []types.Phrase {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.Phrase, len(e.missed))
	copy(out, e.missed)
	return out
}

// StartReview restarts the game over the missed items. The missed list is
// cleared so a review round collects its own misses; the score carries
// over, it only ever grows within a session.
func (e *Engine) StartReview() ([]types.Phrase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.missed) == 0 {
		return nil, ErrNoMissedWords
	}

	e.items = e.missed
	e.missed = nil
	e.missedKeys = make(map[string]bool)
	e.index = 0

	out := make([]types.Phrase, len(e.items))
	copy(out, e.items)
	return out, nil
}

// Reset restarts the game over a fresh item list.
func (e *Engine) Reset(items []types.Phrase) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.items = items
	e.missed = nil
	e.missedKeys = make(map[string]bool)
	e.index = 0
	e.correctCount = 0
}
