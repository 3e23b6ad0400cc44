// Package evaluator calls the evaluate-pr endpoint on behalf of the drain.
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
)

// EvaluatePath is the path of the evaluation endpoint relative to the site URL.
const EvaluatePath = "/api/evaluate-pr"

// maxErrorBody bounds how much of a failed response is kept.
const maxErrorBody = 4096

var _ driven.Evaluator = (*Client)(nil)

// Client implements driven.Evaluator over HTTP. It sets no timeout of its own;
// the caller's context carries the deadline.
type Client struct {
	url        string
	secret     string
	httpClient *http.Client
}

// NewClient creates a Client posting to siteURL + EvaluatePath. A non-empty
// secret is sent as a bearer token. httpClient may be nil.
func NewClient(siteURL, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		url:        strings.TrimRight(siteURL, "/") + EvaluatePath,
		secret:     secret,
		httpClient: httpClient,
	}
}

type evaluateResponse struct {
	Evaluation *struct {
		FinalScore int  `json:"final_score"`
		Eligible   bool `json:"eligible"`
	} `json:"evaluation"`
}

// Evaluate posts req and returns the score from a 2xx response. A non-2xx
// response is returned as *driven.EvaluationError. It never retries.
func (c *Client) Evaluate(ctx context.Context, req model.EvaluationRequest) (model.EvaluationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.EvaluationResult{}, fmt.Errorf("marshal evaluation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return model.EvaluationResult{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return model.EvaluationResult{}, fmt.Errorf("call evaluation endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return model.EvaluationResult{}, &driven.EvaluationError{
			StatusCode: resp.StatusCode,
			Body:       errorMessage(payload),
		}
	}

	var decoded evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return model.EvaluationResult{}, fmt.Errorf("decode evaluation response: %w", err)
	}
	if decoded.Evaluation == nil {
		return model.EvaluationResult{}, errors.New("evaluation response has no evaluation")
	}

	return model.EvaluationResult{
		FinalScore: decoded.Evaluation.FinalScore,
		Eligible:   decoded.Evaluation.Eligible,
	}, nil
}

// errorMessage prefers the "error" field of a JSON error body.
func errorMessage(payload []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(payload))
}
