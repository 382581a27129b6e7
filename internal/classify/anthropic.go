package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultModel   = "claude-3-5-haiku-latest"
	defaultBaseURL = "https://api.anthropic.com"

	defaultTimeout     = 30 * time.Second
	defaultRateLimit   = 2 // requests per second
	defaultBurst       = 4
	defaultMaxRetries  = 3
	defaultBaseBackoff = time.Second
)

// AnthropicClassifier implements Classifier against the Anthropic messages
// API using a fast classification model.
type AnthropicClassifier struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

var _ Classifier = (*AnthropicClassifier)(nil)

// NewAnthropic creates an API-backed classifier. baseURL and model fall back
// to sensible defaults when empty.
func NewAnthropic(apiKey, baseURL, model string) (*AnthropicClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("classify: anthropic API key required")
	}
	if model == "" {
		model = defaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &AnthropicClassifier{
		model:      model,
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
	}, nil
}

const needsInputPrompt = `Analyze the following text and determine if it ends with a question or request that requires the user to provide information, make a decision, or give input.

Examples of text that NEEDS user input:
- "What programming language should I use?"
- "Please tell me more about the features you want."
- "Should I proceed with option A or B?"

Examples of text that does NOT need user input:
- "I've completed the task. The file has been created."
- "Here's the implementation you requested."
- "Let me know if you have any questions." (a polite closing, not a real question)

Text to analyze:
<text>
%s
</text>

Does this text require the user to provide input or answer a question? Respond with only "YES" or "NO".`

func (a *AnthropicClassifier) NeedsUserInput(ctx context.Context, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	reply, err := a.complete(ctx, fmt.Sprintf(needsInputPrompt, truncateTail(text)), 10)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(reply), "YES"), nil
}

const extractPrompt = `Extract the main question or request from the following text that requires user input.

Return ONLY the question/request itself, without any additional text.
If there are multiple questions, return the most important one that the user needs to answer to proceed.
If there's no clear question, respond with "NONE".

Text:
<text>
%s
</text>

Question:`

func (a *AnthropicClassifier) ExtractQuestion(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	reply, err := a.complete(ctx, fmt.Sprintf(extractPrompt, truncateTail(text)), 200)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if strings.EqualFold(reply, "NONE") {
		return "", nil
	}
	return reply, nil
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	_, ok := err.(*retryableError)
	return ok
}

func (a *AnthropicClassifier) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("classify: rate limiter: %w", err)
	}

	req := apiRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		Messages:  []apiMessage{{Role: "user", Content: prompt}},
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		reply, err := a.doRequest(ctx, req)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("classify: max retries exceeded: %w", lastErr)
}

func (a *AnthropicClassifier) doRequest(ctx context.Context, req apiRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("classify: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("classify: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("classify: request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("classify: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("classify: rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("classify: server error (%d)", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp apiError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("classify: API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("classify: API error (%d): %s", resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("classify: parse response: %w", err)
	}
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("classify: empty response")
}
