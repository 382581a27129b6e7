package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHeuristicNeedsUserInput(t *testing.T) {
	ctx := context.Background()
	h := Heuristic{}

	for _, tc := range []struct {
		name string
		text string
		want bool
	}{
		{
			name: "direct question",
			text: "Should I use library X or Y?",
			want: true,
		},
		{
			name: "status update",
			text: "I've completed the task. The file has been created.",
			want: false,
		},
		{
			name: "polite closing is not a question",
			text: "The change set is open. Let me know if you have any questions.",
			want: false,
		},
		{
			name: "question followed by polite closing still blocks",
			text: "Should I target the v2 branch? Let me know if anything is unclear.",
			want: true,
		},
		{
			name: "choice without question mark",
			text: "Please tell me more about the database requirements",
			want: true,
		},
		{
			name: "empty",
			text: "   ",
			want: false,
		},
		{
			name: "announcement of next step",
			text: "I'm now going to create the database schema.",
			want: false,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := h.NeedsUserInput(ctx, tc.text)
			if err != nil {
				t.Fatalf("NeedsUserInput: %v", err)
			}
			if got != tc.want {
				t.Errorf("NeedsUserInput(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestHeuristicExtractQuestion(t *testing.T) {
	ctx := context.Background()
	h := Heuristic{}

	text := "I compared both options. Should I use library X or Y?"
	q, err := h.ExtractQuestion(ctx, text)
	if err != nil {
		t.Fatalf("ExtractQuestion: %v", err)
	}
	if !strings.Contains(q, "library X or Y") {
		t.Errorf("ExtractQuestion = %q, want the question about library X or Y", q)
	}

	q, err = h.ExtractQuestion(ctx, "All done, tests pass.")
	if err != nil {
		t.Fatalf("ExtractQuestion: %v", err)
	}
	if q != "" {
		t.Errorf("ExtractQuestion on status text = %q, want empty", q)
	}
}

func TestTruncateTailKeepsEnd(t *testing.T) {
	long := strings.Repeat("filler ", 1000) + "Should I proceed?"
	got := truncateTail(long)
	if len(got) > maxChars+3 {
		t.Errorf("truncated length = %d", len(got))
	}
	if !strings.HasSuffix(got, "Should I proceed?") {
		t.Error("truncation should preserve the tail where questions live")
	}
	if !strings.HasPrefix(got, "...") {
		t.Error("truncated text should be marked with a leading ellipsis")
	}
}

func newTestAnthropic(t *testing.T, handler http.HandlerFunc) *AnthropicClassifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewAnthropic("test-key", srv.URL, "")
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	return c
}

func TestAnthropicNeedsUserInput(t *testing.T) {
	c := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("Anthropic-Version") == "" {
			t.Errorf("missing version header")
		}
		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "library X or Y") {
			t.Errorf("prompt did not embed the text under test")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "YES"}},
		})
	})

	got, err := c.NeedsUserInput(context.Background(), "Should I use library X or Y?")
	if err != nil {
		t.Fatalf("NeedsUserInput: %v", err)
	}
	if !got {
		t.Error("NeedsUserInput = false, want true when API says YES")
	}
}

func TestAnthropicExtractQuestionNone(t *testing.T) {
	c := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "NONE"}},
		})
	})

	q, err := c.ExtractQuestion(context.Background(), "All done.")
	if err != nil {
		t.Fatalf("ExtractQuestion: %v", err)
	}
	if q != "" {
		t.Errorf("ExtractQuestion = %q, want empty for NONE", q)
	}
}

func TestAnthropicRetriesServerErrors(t *testing.T) {
	var calls int
	c := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "NO"}},
		})
	})
	c.maxRetries = 1

	got, err := c.NeedsUserInput(context.Background(), "done")
	if err != nil {
		t.Fatalf("NeedsUserInput after retry: %v", err)
	}
	if got {
		t.Error("NeedsUserInput = true, want false")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls)
	}
}

func TestAnthropicBadRequestIsNotRetried(t *testing.T) {
	var calls int
	c := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "bad model"},
		})
	})

	_, err := c.NeedsUserInput(context.Background(), "text")
	if err == nil || !strings.Contains(err.Error(), "bad model") {
		t.Errorf("err = %v, want API error with message", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on 4xx)", calls)
	}
}

func TestNewAnthropicRequiresKey(t *testing.T) {
	if _, err := NewAnthropic("", "", ""); err == nil {
		t.Error("empty key should error")
	}
}
