package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/seednote/seed-worker/internal/failure"
	"github.com/seednote/seed-worker/pkg/requestid"
	"go.uber.org/zap"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"

	chatCompletionsPath = "/v1/chat/completions"
	modelsPath          = "/v1/models"
)

// CompletionClient talks to an OpenAI compatible chat completions endpoint,
// such as the one served by Ollama.
type CompletionClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewCompletionClient(baseURL string, timeout time.Duration) *CompletionClient {
	return NewCompletionClientWithHTTPClient(baseURL, timeout, NewHTTPClient(0))
}

func NewCompletionClientWithHTTPClient(baseURL string, timeout time.Duration, httpClient *http.Client) *CompletionClient {
	return &CompletionClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: httpClient,
	}
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	// Temperature is left out of the request when nil so the backend default applies.
	Temperature *float64 `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message *struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type apiError struct {
	Message string `json:"message"`
}

// Complete sends req and returns the text of the first choice. The request is
// always sent with streaming disabled.
func (c *CompletionClient) Complete(ctx context.Context, req *ChatRequest) (string, error) {
	const op = "call completion backend"

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload := *req
	payload.Stream = false
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return "", failure.NewErrTransport(op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	requestid.SetHeader(ctx, httpReq)

	logger := zap.S().Named("completion")
	logger.Debugw("sending completion request", "model", req.Model, "messages", len(req.Messages), "request_id", requestid.FromContext(ctx))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", failure.NewErrTransport(op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", failure.NewErrTransport(op, errors.Wrap(err, "failed to read response body"))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", failure.NewErrUnexpectedStatus(op, resp.StatusCode, bodyBytes)
	}

	var completion chatResponse
	if err := json.Unmarshal(bodyBytes, &completion); err != nil {
		return "", failure.NewErrParse("completion response", err)
	}

	if completion.Error != nil && len(completion.Choices) == 0 {
		return "", failure.NewErrResponseShapeWithReason("choices[0]", "backend error: "+completion.Error.Message)
	}

	content, err := firstContent(completion.Choices)
	if err != nil {
		return "", err
	}

	logger.Debugw("completion received", "duration", time.Since(start), "length", len(content))
	return content, nil
}

func firstContent(choices []chatChoice) (string, error) {
	if len(choices) == 0 {
		return "", failure.NewErrResponseShape("choices[0]")
	}
	msg := choices[0].Message
	if msg == nil {
		return "", failure.NewErrResponseShape("choices[0].message")
	}

	raw := bytes.TrimSpace(msg.Content)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", failure.NewErrResponseShape("choices[0].message.content")
	}

	var content string
	if err := json.Unmarshal(raw, &content); err != nil {
		return "", failure.NewErrResponseShape("choices[0].message.content (string)")
	}
	return content, nil
}

// HealthCheck asks the backend for its model list.
func (c *CompletionClient) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath, nil)
	if err != nil {
		return failure.NewErrTransport("check completion backend", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return failure.NewErrTransport("check completion backend", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Drain body to enable connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return failure.NewErrUnexpectedStatus("check completion backend", resp.StatusCode, nil)
	}

	return nil
}
