package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/qs3c/exam_prep_server/internal/model"
)

const maxSourceChars = 12000

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIGenerator 调用 OpenAI 兼容的 chat/completions 接口
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

func (g *OpenAIGenerator) complete(ctx context.Context, messages []openai.ChatCompletionMessage, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: 0.7,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generator api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generator returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) GenerateQuestions(ctx context.Context, sourceText string, count int) ([]model.Question, error) {
	content, err := g.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: questionSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: questionPrompt(sourceText, count)},
	}, true)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Questions []model.Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse questions: %w", err)
	}
	return Sanitize(payload.Questions, count)
}

func (g *OpenAIGenerator) ExplainAnswer(ctx context.Context, q model.Question, chosen string) (string, error) {
	content, err := g.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "You are an NCLEX tutor. Explain answers in at most 120 words."},
		{Role: openai.ChatMessageRoleUser, Content: explainPrompt(q, chosen)},
	}, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

const questionSystemPrompt = `You write NCLEX-RN style multiple-choice questions.
Respond with JSON: {"questions":[{"id":"q1","category":"...","question":"...","options":{"A":"...","B":"...","C":"...","D":"..."},"correct_answer":"A","explanation":"..."}]}.
category must be one of: Safe and Effective Care, Health Promotion, Psychosocial, Physiological.`

func questionPrompt(sourceText string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %d questions with this category mix:\n", count)
	dist := model.DistributeCategories(count)
	for _, c := range model.CategoryDistribution {
		fmt.Fprintf(&b, "- %s: %d\n", c.Category, dist[c.Category])
	}

	sourceText = strings.TrimSpace(sourceText)
	if sourceText == "" {
		b.WriteString("Cover general nursing practice.\n")
		return b.String()
	}
	if len(sourceText) > maxSourceChars {
		sourceText = sourceText[:maxSourceChars]
	}
	b.WriteString("Base every question on this study material:\n\n")
	b.WriteString(sourceText)
	return b.String()
}

func explainPrompt(q model.Question, chosen string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", q.Question)
	for _, letter := range OptionLetters(q) {
		fmt.Fprintf(&b, "%s. %s\n", letter, q.Options[letter])
	}
	fmt.Fprintf(&b, "The student chose %s. The correct answer is %s.\n", chosen, q.CorrectAnswer)
	if chosen == q.CorrectAnswer {
		b.WriteString("Explain why this answer is correct.")
	} else {
		b.WriteString("Explain why the chosen answer is wrong and why the correct answer is right.")
	}
	return b.String()
}
