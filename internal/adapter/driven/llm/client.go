// Package llm classifies merged pull requests with an OpenAI-compatible
// chat-completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
)

// DefaultEndpoint is the OpenAI chat-completions URL.
const DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

// maxBodyChars bounds the PR description sent in the prompt.
const maxBodyChars = 4000

var _ driven.PRScorer = (*Client)(nil)

// Config holds the connection settings for the chat API.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client implements driven.PRScorer.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient builds a client from configuration. A zero timeout defaults to 25s.
func NewClient(cfg Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type classificationAnswer struct {
	Severity  string `json:"severity"`
	Component string `json:"component"`
	Summary   string `json:"summary"`
}

// Classify asks the model for a severity, component and short summary of the PR.
func (c *Client) Classify(ctx context.Context, req model.EvaluationRequest, guide driven.ScoringGuide) (model.Classification, error) {
	if c.apiKey == "" || c.model == "" {
		return model.Classification{}, errors.New("llm client misconfigured: api key and model are required")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(guide)},
			{Role: "user", Content: userPrompt(req)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return model.Classification{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.Classification{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return model.Classification{}, fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return model.Classification{}, fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return model.Classification{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return model.Classification{}, errors.New("llm returned no choices")
	}

	answer, err := parseAnswer(chat.Choices[0].Message.Content)
	if err != nil {
		return model.Classification{}, err
	}

	usedModel := chat.Model
	if usedModel == "" {
		usedModel = c.model
	}

	return model.Classification{
		Severity:  answer.Severity,
		Component: answer.Component,
		Summary:   answer.Summary,
		Model:     usedModel,
	}, nil
}

// parseAnswer extracts the JSON object from the model output, tolerating a
// surrounding markdown code fence.
func parseAnswer(content string) (classificationAnswer, error) {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			content = content[start : end+1]
		}
	}

	var answer classificationAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return classificationAnswer{}, fmt.Errorf("parse classification: %w", err)
	}
	if answer.Severity == "" {
		return classificationAnswer{}, errors.New("classification is missing a severity")
	}

	return answer, nil
}

func systemPrompt(guide driven.ScoringGuide) string {
	var b strings.Builder
	b.WriteString("You review merged GitHub pull requests and classify their impact.\n")
	b.WriteString("Answer with a JSON object: {\"severity\": string, \"component\": string, \"summary\": string}.\n")
	b.WriteString("The summary is two or three sentences of markdown describing what changed.\n\n")

	b.WriteString("Severity must be one of:\n")
	for _, s := range guide.Severities {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
	}

	if len(guide.Components) > 0 {
		b.WriteString("\nComponent must be one of:\n")
		for _, c := range guide.Components {
			fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		}
	}

	return b.String()
}

func userPrompt(req model.EvaluationRequest) string {
	body := req.Body
	if len([]rune(body)) > maxBodyChars {
		body = string([]rune(body)[:maxBodyChars]) + "\n[truncated]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", req.Repo)
	fmt.Fprintf(&b, "Pull request #%d: %s\n", req.Number, req.Title)
	fmt.Fprintf(&b, "Author: %s\n", req.Author)
	fmt.Fprintf(&b, "Diff: +%d -%d across %d files\n\n", req.Additions, req.Deletions, req.ChangedFiles)
	b.WriteString("Description:\n")
	if strings.TrimSpace(body) == "" {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(body)
		b.WriteString("\n")
	}

	return b.String()
}
