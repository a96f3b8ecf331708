package generator

import (
	"context"
	"fmt"
	"strings"

	"resty.dev/v3"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type OpenAI struct {
	httpClient  *resty.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetHeader("Authorization", "Bearer "+apiKey)
	client.SetHeader("Content-Type", "application/json")
	return &OpenAI{
		httpClient:  client,
		model:       model,
		maxTokens:   150,
		temperature: 1.1,
	}
}

func (c *OpenAI) Close() error {
	return c.httpClient.Close()
}

func (c *OpenAI) Model() string {
	return c.model
}

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

func (c *OpenAI) Generate(ctx context.Context, in Input) (Output, error) {
	prompt := UserPrompt(in)
	response, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(ChatCompletionRequest{
			Model: c.model,
			Messages: []Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: prompt},
			},
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
		}).
		SetResult(&ChatCompletionResponse{}).
		Post("/chat/completions")
	if err != nil {
		return Output{}, fmt.Errorf("chat completion: %w", err)
	}
	if response.IsError() {
		return Output{}, fmt.Errorf("response error %d: %s", response.StatusCode(), response.String())
	}
	body, ok := response.Result().(*ChatCompletionResponse)
	if !ok || body == nil || len(body.Choices) == 0 {
		return Output{}, fmt.Errorf("empty response body or choices: %s", response.String())
	}
	text := strings.TrimSpace(body.Choices[0].Message.Content)
	if text == "" {
		return Output{}, fmt.Errorf("empty response content: %s", response.String())
	}
	return Output{Prompt: prompt, Text: text, Model: c.model}, nil
}
