// Package answerer synthesizes a retrieval-grounded answer from cited
// passages via an OpenAI-compatible chat completion backend (spec §6
// "POST /rag/answer"), in the style of the teacher's internal/llm client.
package answerer

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"norma-pipeline/internal/config"
)

// Citation is one retrieved passage offered as grounding context.
type Citation struct {
	Label string
	Text  string
}

// Answerer turns a question plus a set of citations into a grounded answer.
type Answerer interface {
	Answer(ctx context.Context, question string, citations []Citation) (string, error)
}

// New builds a chat-completion backed Answerer. An empty BaseURL still
// produces a usable client against the default OpenAI endpoint.
func New(cfg config.AnswerConfig) Answerer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &chatAnswerer{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

type chatAnswerer struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

const systemPrompt = "You answer questions about Spanish legal norms using only the numbered " +
	"passages given to you. Cite passages inline as [n]. If the passages do not contain the " +
	"answer, say so plainly."

func (a *chatAnswerer) Answer(ctx context.Context, question string, citations []Citation) (string, error) {
	if len(citations) == 0 {
		return "No hay pasajes recuperados para responder a esta consulta.", nil
	}

	var sb strings.Builder
	sb.WriteString("Question: " + question + "\n\nPassages:\n")
	for i, c := range citations {
		fmt.Fprintf(&sb, "[%d] (%s)\n%s\n\n", i+1, c.Label, c.Text)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(sb.String()),
		},
		Temperature: openai.Float(a.temperature),
		MaxTokens:   openai.Int(int64(a.maxTokens)),
	}

	comp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("answerer: chat completion: %w", err)
	}
	if len(comp.Choices) == 0 {
		return "", fmt.Errorf("answerer: empty completion")
	}
	return comp.Choices[0].Message.Content, nil
}
