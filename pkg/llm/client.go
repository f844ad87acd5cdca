// Package llm drives the assistant that generates the personalized message
// content. The contract with the assistant is fixed: it receives the
// serialized context object as the first user message of a fresh thread and
// replies with a JSON object whose fields fill the provider template's
// variable slots.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/heraldhq/herald/pkg/config"
)

// Sentinel errors distinguishing the assistant-run failure modes.
var (
	// ErrRunTimeout indicates the run did not reach a terminal status within
	// the polling budget.
	ErrRunTimeout = errors.New("assistant run did not complete within budget")

	// ErrRunFailed indicates the run reached a terminal status other than
	// completed.
	ErrRunFailed = errors.New("assistant run failed")

	// ErrBadReply indicates the assistant reply was missing or not the
	// expected JSON variable map.
	ErrBadReply = errors.New("assistant reply is not a variable map")
)

// RunInput identifies the assistant and carries the serialized context
// object to post as the opening user message.
type RunInput struct {
	AssistantID string
	Prompt      string
}

// RunResult is the outcome of a completed assistant run.
type RunResult struct {
	ThreadID     string
	Variables    map[string]string
	ReplyText    string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Elapsed      time.Duration
}

// Runner executes one assistant run on a fresh thread.
type Runner interface {
	Run(ctx context.Context, input RunInput) (*RunResult, error)
}

// Factory builds a Runner from a tenant's API key. Credentials are
// per-tenant, so the client is constructed per message, not at startup.
type Factory func(apiKey string) Runner

// NewFactory returns a Factory honoring the configured polling cadence and
// optional base URL override.
func NewFactory(cfg config.LLMConfig) Factory {
	return func(apiKey string) Runner {
		clientCfg := openai.DefaultConfig(apiKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		return &Client{
			api:          openai.NewClientWithConfig(clientCfg),
			pollInterval: cfg.PollInterval,
			pollBudget:   cfg.PollBudget,
		}
	}
}

// Client runs assistants through the OpenAI Assistants API.
type Client struct {
	api          *openai.Client
	pollInterval time.Duration
	pollBudget   time.Duration
}

// NewClient creates a Client around a pre-built API client. Used by tests
// with a stub server.
func NewClient(api *openai.Client, pollInterval, pollBudget time.Duration) *Client {
	return &Client{api: api, pollInterval: pollInterval, pollBudget: pollBudget}
}

// Run opens a thread, posts the prompt, starts the assistant run, and polls
// until it terminates or the budget is exhausted. The reply is parsed as the
// template variable map.
func (c *Client) Run(ctx context.Context, input RunInput) (*RunResult, error) {
	start := time.Now()

	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}

	_, err = c.api.CreateMessage(ctx, thread.ID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: input.Prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("posting context message to thread %s: %w", thread.ID, err)
	}

	run, err := c.api.CreateRun(ctx, thread.ID, openai.RunRequest{
		AssistantID: input.AssistantID,
	})
	if err != nil {
		return nil, fmt.Errorf("starting run on thread %s: %w", thread.ID, err)
	}

	run, err = c.pollRun(ctx, thread.ID, run.ID)
	if err != nil {
		return nil, err
	}

	reply, err := c.latestReply(ctx, thread.ID, run.ID)
	if err != nil {
		return nil, err
	}

	variables, err := ParseVariables(reply)
	if err != nil {
		return nil, err
	}

	return &RunResult{
		ThreadID:     thread.ID,
		Variables:    variables,
		ReplyText:    reply,
		InputTokens:  run.Usage.PromptTokens,
		OutputTokens: run.Usage.CompletionTokens,
		TotalTokens:  run.Usage.TotalTokens,
		Elapsed:      time.Since(start),
	}, nil
}

// pollRun polls the run status until terminal, honoring the budget.
func (c *Client) pollRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	deadline := time.Now().Add(c.pollBudget)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		run, err := c.api.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return openai.Run{}, fmt.Errorf("polling run %s: %w", runID, err)
		}

		switch run.Status {
		case openai.RunStatusCompleted:
			return run, nil
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired:
			detail := ""
			if run.LastError != nil {
				detail = fmt.Sprintf(" (%s: %s)", run.LastError.Code, run.LastError.Message)
			}
			return openai.Run{}, fmt.Errorf("%w: run %s ended %s%s", ErrRunFailed, runID, run.Status, detail)
		case openai.RunStatusRequiresAction:
			// The assistants used here have no tools attached; a tool-call
			// request means the assistant is misconfigured.
			return openai.Run{}, fmt.Errorf("%w: run %s requires action", ErrRunFailed, runID)
		}

		if time.Now().After(deadline) {
			return openai.Run{}, fmt.Errorf("%w: run %s still %s after %s",
				ErrRunTimeout, runID, run.Status, c.pollBudget)
		}

		select {
		case <-ctx.Done():
			return openai.Run{}, fmt.Errorf("polling run %s: %w", runID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// latestReply returns the text of the assistant message produced by the run.
func (c *Client) latestReply(ctx context.Context, threadID, runID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", fmt.Errorf("listing messages for run %s: %w", runID, err)
	}
	if len(list.Messages) == 0 {
		return "", fmt.Errorf("%w: run produced no messages", ErrBadReply)
	}

	var sb strings.Builder
	for _, content := range list.Messages[0].Content {
		if content.Text != nil {
			sb.WriteString(content.Text.Value)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: assistant message has no text content", ErrBadReply)
	}
	return sb.String(), nil
}

// ParseVariables parses the assistant reply into the template variable map.
// The reply must be a flat JSON object; scalar values are stringified, and a
// surrounding markdown code fence is tolerated.
func ParseVariables(reply string) (map[string]string, error) {
	trimmed := stripCodeFence(strings.TrimSpace(reply))

	var raw map[string]any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadReply, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: variable map is empty", ErrBadReply)
	}

	variables := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			variables[key] = v
		case float64:
			variables[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			variables[key] = strconv.FormatBool(v)
		case nil:
			variables[key] = ""
		default:
			return nil, fmt.Errorf("%w: variable %q is not a scalar", ErrBadReply, key)
		}
	}
	return variables, nil
}

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 && !strings.ContainsAny(s[:idx], "{}") {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
