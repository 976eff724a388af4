// Package knowledge answers free-text patient questions from the hospital's
// knowledge base using an OpenAI-compatible chat completion API.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Sentinel answers. The caller opens a support ticket for either.
const (
	UnknownQuery = "UNKNOWN_QUERY"
	HumanHandoff = "HUMAN_HANDOFF"
)

var ErrNotConfigured = errors.New("knowledge: llm api key not configured")

// Answerer returns a direct answer or one of the sentinels.
type Answerer interface {
	Answer(ctx context.Context, query, languageHint string) (string, error)
}

// EntrySource provides the facts injected into the prompt.
type EntrySource interface {
	List(ctx context.Context) ([]Entry, error)
}

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Timeout      time.Duration
	HospitalName string
	Logger       *zap.Logger
}

type LLMAnswerer struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	hospital string
	entries  EntrySource
	logger   *zap.Logger
}

func NewLLMAnswerer(cfg Config, entries EntrySource) *LLMAnswerer {
	a := &LLMAnswerer{
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		hospital: cfg.HospitalName,
		entries:  entries,
		logger:   cfg.Logger,
	}
	if a.model == "" {
		a.model = "llama3-8b-8192"
	}
	if a.timeout <= 0 {
		a.timeout = 15 * time.Second
	}
	if a.hospital == "" {
		a.hospital = "the hospital"
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}

	if cfg.APIKey != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		a.client = openai.NewClientWithConfig(oc)
	}
	return a
}

func (a *LLMAnswerer) Answer(ctx context.Context, query, languageHint string) (string, error) {
	if a.client == nil {
		return "", ErrNotConfigured
	}

	entries, err := a.entries.List(ctx)
	if err != nil {
		return "", fmt.Errorf("load knowledge base: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: a.systemPrompt(entries, languageHint)},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return UnknownQuery, nil
	}

	answer := classify(resp.Choices[0].Message.Content)
	a.logger.Debug("knowledge answer",
		zap.String("model", a.model),
		zap.Int("kb_entries", len(entries)),
		zap.Bool("sentinel", answer == UnknownQuery || answer == HumanHandoff),
	)
	return answer, nil
}

func (a *LLMAnswerer) systemPrompt(entries []Entry, languageHint string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful WhatsApp assistant for %s.\n", a.hospital)
	b.WriteString("Answer only from the knowledge base below. Keep answers short and friendly.\n")
	fmt.Fprintf(&b, "If the answer is not in the knowledge base, reply with exactly %s and nothing else.\n", UnknownQuery)
	fmt.Fprintf(&b, "If the user asks to talk to a person, staff or a human, reply with exactly %s and nothing else.\n", HumanHandoff)
	if strings.EqualFold(languageHint, "malayalam") {
		b.WriteString("Reply in Malayalam.\n")
	} else {
		b.WriteString("Reply in English.\n")
	}
	b.WriteString("\nKnowledge base:\n")
	for _, e := range entries {
		if e.Question != "" {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", e.Question, e.Answer)
		} else {
			fmt.Fprintf(&b, "%s\n\n", e.Answer)
		}
	}
	return b.String()
}

// classify maps model output onto the sentinels when it uses them.
func classify(content string) string {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return UnknownQuery
	case strings.Contains(content, HumanHandoff):
		return HumanHandoff
	case strings.Contains(content, UnknownQuery):
		return UnknownQuery
	}
	return content
}
