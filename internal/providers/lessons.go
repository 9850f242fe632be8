package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"xiaoqiu/pkg/types"
)

// LessonClient fetches curriculum content from the backend. Lesson lists
// are cached per level since they only change between releases.
type LessonClient struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	cache map[int][]types.Lesson
}

func NewLessonClient(baseURL string, timeout time.Duration) *LessonClient {
	return &LessonClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		cache:   make(map[int][]types.Lesson),
	}
}

// Lessons returns the topics available at one level, from cache when
// already fetched.
func (c *LessonClient) Lessons(ctx context.Context, level int) ([]types.Lesson, error) {
	c.mu.Lock()
	if cached, ok := c.cache[level]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	url := fmt.Sprintf("%s/lessons?hskLevel=%d", c.baseURL, level)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build lessons request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lessons request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lessons request returned status %d", resp.StatusCode)
	}

	var lessons []types.Lesson
	if err := json.NewDecoder(resp.Body).Decode(&lessons); err != nil {
		return nil, fmt.Errorf("failed to decode lessons response: %w", err)
	}

	c.mu.Lock()
	c.cache[level] = lessons
	c.mu.Unlock()

	return lessons, nil
}

// Words returns the target vocabulary for talk mode at one level.
func (c *LessonClient) Words(ctx context.Context, level int) ([]types.Phrase, error) {
	url := fmt.Sprintf("%s/hsk_words?level=%d", c.baseURL, level)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build words request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("words request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("words request returned status %d", resp.StatusCode)
	}

	var payload struct {
		Words []types.Phrase `json:"words"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode words response: %w", err)
	}

	return payload.Words, nil
}
