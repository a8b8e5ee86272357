// Package summary generates short AI summaries of ingested messages
// through an OpenAI-compatible chat completions endpoint.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail-responder/internal/store"
)

const (
	defaultURL       = "https://router.huggingface.co/v1/chat/completions"
	defaultModel     = "HuggingFaceTB/SmolLM3-3B:hf-inference"
	defaultMaxTokens = 120

	// maxInputChars bounds how much of the message body is sent out.
	maxInputChars = 4000

	// maxSummaryWords caps the stored summary regardless of what the
	// model returns.
	maxSummaryWords = 50
)

// ErrNoContent is returned when a message has nothing to summarize.
var ErrNoContent = errors.New("Message has no content to summarize")

// ErrNotConfigured is returned when no API token is set.
var ErrNotConfigured = errors.New("Summary service is not configured")

// Summarizer calls the completion API and caches the result on the
// message row. Summaries are best-effort: a failure never affects the
// message state.
type Summarizer struct {
	url       string
	token     string
	model     string
	maxTokens int

	store  store.Store
	client *http.Client
	logger *zap.Logger
}

// New creates a summarizer. Empty url/model fall back to defaults; an
// empty token leaves the service unconfigured, and Summarize fails
// fast.
func New(s store.Store, url, token, model string, maxTokens int, logger *zap.Logger) *Summarizer {
	if url == "" {
		url = defaultURL
	}
	if model == "" {
		model = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Summarizer{
		url:       url,
		token:     token,
		model:     model,
		maxTokens: maxTokens,
		store:     s,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize generates and stores a summary for the message. An already
// generated summary is returned as-is without another API call.
func (s *Summarizer) Summarize(ctx context.Context, userID, messageID string) (string, error) {
	if s.token == "" {
		return "", ErrNotConfigured
	}

	msg, err := s.store.GetMessage(ctx, messageID, userID)
	if err != nil {
		return "", err
	}

	if msg.Summary != "" {
		return msg.Summary, nil
	}

	content := strings.TrimSpace(stripHTML(msg.Body))
	if content == "" {
		return "", ErrNoContent
	}
	if len(content) > maxInputChars {
		content = content[:maxInputChars]
	}

	prompt := fmt.Sprintf(
		"Summarize this email in under 50 words. Reply with the summary only.\n\nSubject: %s\n\n%s",
		msg.Subject, content,
	)

	text, err := s.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	text = capWords(text, maxSummaryWords)

	if err := s.store.SetSummary(ctx, messageID, userID, text); err != nil {
		return "", err
	}

	return text, nil
}

// complete performs one chat completion request.
func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling summary API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("summary API returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)))
		return "", fmt.Errorf("summary API returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("summary API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("summary API returned no choices")
	}

	text := stripThinking(parsed.Choices[0].Message.Content)
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("summary API returned empty text")
	}

	return text, nil
}

// thinkPattern matches the reasoning block some models emit before the
// answer.
var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

func stripThinking(text string) string {
	return thinkPattern.ReplaceAllString(text, "")
}

// capWords truncates text to at most n whitespace-separated words.
func capWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ")
}

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes HTML tags from a string and decodes common
// entities, providing a basic plain-text rendering.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
