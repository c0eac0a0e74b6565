package rag

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Generator 定义答案生成接口。Stream对每个增量token回调一次，
// 回调返回错误时中止流。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string, onToken func(token string) error) error
}

// GeneratorOptions 生成参数
type GeneratorOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// OpenAIGenerator 使用OpenAI Chat Completions API生成答案
type OpenAIGenerator struct {
	client *openai.Client
	opts   GeneratorOptions
}

// NewOpenAIGenerator 创建OpenAI生成器
func NewOpenAIGenerator(apiKey, baseURL string, opts GeneratorOptions) (*OpenAIGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is empty")
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		opts:   opts,
	}, nil
}

func (g *OpenAIGenerator) chatRequest(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: g.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(g.opts.Temperature),
		MaxTokens:   g.opts.MaxTokens,
		Stream:      stream,
	}
}

// Generate 阻塞式生成，返回首个completion。
// 提供方返回零个completion时返回空串，由调用方决定兜底文案。
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, g.chatRequest(prompt, false))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream token级流式生成
func (g *OpenAIGenerator) Stream(ctx context.Context, prompt string, onToken func(token string) error) error {
	stream, err := g.client.CreateChatCompletionStream(ctx, g.chatRequest(prompt, true))
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		token := resp.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		if err := onToken(token); err != nil {
			return err
		}
	}
}
