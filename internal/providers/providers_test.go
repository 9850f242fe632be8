package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"xiaoqiu/pkg/types"
)

func TestTokenClient_FetchToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			t.Errorf("Expected path /token, got %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"sess_1","client_secret":{"value":"ek_secret_123","expires_at":1}}`))
	}))
	defer server.Close()

	client := NewTokenClient(server.URL, 5*time.Second)

	token, err := client.FetchToken(context.Background())
	if err != nil {
		t.Fatalf("FetchToken should succeed: %v", err)
	}
	if token != "ek_secret_123" {
		t.Errorf("Expected token ek_secret_123, got %s", token)
	}
}

func TestTokenClient_FetchTokenFailures(t *testing.T) {
	// Backend error status.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no key configured", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewTokenClient(server.URL, 5*time.Second)
	if _, err := client.FetchToken(context.Background()); err == nil {
		t.Error("Error status should fail FetchToken")
	}

	// Empty secret in an otherwise valid response.
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"client_secret":{"value":""}}`))
	}))
	defer empty.Close()

	client = NewTokenClient(empty.URL, 5*time.Second)
	if _, err := client.FetchToken(context.Background()); err != ErrEmptyToken {
		t.Errorf("Expected ErrEmptyToken, got %v", err)
	}

	client = NewTokenClient("", 5*time.Second)
	if _, err := client.FetchToken(context.Background()); err != ErrMissingBaseURL {
		t.Errorf("Expected ErrMissingBaseURL, got %v", err)
	}
}

func TestSDPNegotiator_Exchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ek_secret" {
			t.Errorf("Expected bearer auth, got %s", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/sdp" {
			t.Errorf("Expected application/sdp, got %s", got)
		}
		if got := r.URL.Query().Get("model"); got != "gpt-4o-realtime-preview" {
			t.Errorf("Expected model query, got %s", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "v=0 offer" {
			t.Errorf("Expected offer body, got %s", body)
		}
		w.Write([]byte("v=0 answer"))
	}))
	defer server.Close()

	negotiator := NewSDPNegotiator(server.URL, "gpt-4o-realtime-preview", 5*time.Second)

	answer, err := negotiator.Exchange(context.Background(), "v=0 offer", "ek_secret")
	if err != nil {
		t.Fatalf("Exchange should succeed: %v", err)
	}
	if answer != "v=0 answer" {
		t.Errorf("Expected answer SDP, got %s", answer)
	}
}

func TestSDPNegotiator_ExchangeFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer server.Close()

	negotiator := NewSDPNegotiator(server.URL, "m", 5*time.Second)
	if _, err := negotiator.Exchange(context.Background(), "offer", "bad"); err == nil {
		t.Error("Error status should fail Exchange")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer empty.Close()

	negotiator = NewSDPNegotiator(empty.URL, "m", 5*time.Second)
	if _, err := negotiator.Exchange(context.Background(), "offer", "tok"); err != ErrEmptyAnswer {
		t.Errorf("Expected ErrEmptyAnswer, got %v", err)
	}
}

func TestLessonClient_LessonsCachesPerLevel(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if got := r.URL.Query().Get("hskLevel"); got != "2" {
			t.Errorf("Expected hskLevel=2, got %s", got)
		}
		json.NewEncoder(w).Encode([]types.Lesson{
			{ID: "l1", TopicTitle: "点菜", EnglishTitle: "Ordering Food"},
		})
	}))
	defer server.Close()

	client := NewLessonClient(server.URL, 5*time.Second)

	lessons, err := client.Lessons(context.Background(), 2)
	if err != nil {
		t.Fatalf("Lessons should succeed: %v", err)
	}
	if len(lessons) != 1 || lessons[0].TopicTitle != "点菜" {
		t.Errorf("Unexpected lessons: %v", lessons)
	}

	// Second call for the same level is served from cache.
	if _, err := client.Lessons(context.Background(), 2); err != nil {
		t.Fatalf("Cached Lessons should succeed: %v", err)
	}
	if hits != 1 {
		t.Errorf("Expected 1 backend hit, got %d", hits)
	}
}

func TestLessonClient_Words(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hsk_words" {
			t.Errorf("Expected path /hsk_words, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("level"); got != "1" {
			t.Errorf("Expected level=1, got %s", got)
		}
		w.Write([]byte(`{"words":[{"chinese":"你好","pinyin":"nǐhǎo","english":"hello"}]}`))
	}))
	defer server.Close()

	client := NewLessonClient(server.URL, 5*time.Second)

	words, err := client.Words(context.Background(), 1)
	if err != nil {
		t.Fatalf("Words should succeed: %v", err)
	}
	if len(words) != 1 || words[0].Chinese != "你好" {
		t.Errorf("Unexpected words: %v", words)
	}
}

func TestMemoryClient_FetchNewUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewMemoryClient(server.URL, 5*time.Second)

	// 404 means a new learner, not an error.
	summary, err := client.Fetch(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Fetch for a new user should succeed: %v", err)
	}
	if summary != "" {
		t.Errorf("Expected empty summary for new user, got %s", summary)
	}
}

func TestMemoryClient_FetchExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/memory/user_state/user-2" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"summary":"likes football"}`))
	}))
	defer server.Close()

	client := NewMemoryClient(server.URL, 5*time.Second)

	summary, err := client.Fetch(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("Fetch should succeed: %v", err)
	}
	if summary != `{"summary":"likes football"}` {
		t.Errorf("Unexpected summary: %s", summary)
	}

	// An empty object counts as no memory.
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer empty.Close()

	client = NewMemoryClient(empty.URL, 5*time.Second)
	summary, err = client.Fetch(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("Fetch should succeed: %v", err)
	}
	if summary != "" {
		t.Errorf("Empty object should yield empty summary, got %s", summary)
	}
}

func TestMemoryClient_Store(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/memory/store" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Payload should be JSON: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewMemoryClient(server.URL, 5*time.Second)

	transcript := []types.TranscriptEntry{
		{Role: "user", Content: "你好"},
		{Role: "assistant", Content: "你好！今天怎么样？"},
	}
	if err := client.Store(context.Background(), "user-3", transcript); err != nil {
		t.Fatalf("Store should succeed: %v", err)
	}

	if received["user_id"] != "user-3" {
		t.Errorf("Expected user_id user-3, got %s", received["user_id"])
	}
	if received["message"] != "user: 你好\nassistant: 你好！今天怎么样？" {
		t.Errorf("Unexpected message: %s", received["message"])
	}

	// Empty transcripts are not flushed.
	if err := client.Store(context.Background(), "user-3", nil); err != nil {
		t.Fatalf("Store of empty transcript should no-op: %v", err)
	}
}
