package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/mmayman666/Otouri-app-final-sub001/app/config"
	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/sashabaranov/go-openai"
)

const chatSystemPrompt = "You are Otouri, a friendly perfume expert. Help users discover fragrances, " +
	"explain notes, accords, longevity and sillage, and suggest perfumes for occasions and budgets. " +
	"Keep answers concise and answer in the user's language."

const visionPrompt = `Identify the perfume in this image. Reply with a single JSON object and nothing else, using exactly these keys:
{"perfumeName": string, "brand": string, "type": string, "confidence": number 0-100, "notes": [string],
"description": string, "occasions": [string], "longevity": string, "sillage": string, "gender": string,
"price_range": string, "similar": [{"name": string, "brand": string, "similarity": number 0-100, "price": string, "image": string}]}`

// ChatStream yields text chunks until io.EOF.
type ChatStream interface {
	Recv() (string, error)
	Close() error
}

// Assistant is the LLM provider behind chat and image analysis.
type Assistant interface {
	StreamChat(ctx context.Context, messages []models.ChatMessage) (ChatStream, error)
	AnalyzeImage(ctx context.Context, image []byte, mimeType string) (string, error)
	Close() error
}

// NewAssistant picks the provider named by LLM_PROVIDER. It returns a nil
// Assistant when the selected provider has no API key.
func NewAssistant(ctx context.Context, cfg *config.Config) (Assistant, error) {
	switch cfg.LLMProvider {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, nil
		}
		g, err := NewGeminiAssistant(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "openai", "":
		if cfg.OpenAI.APIKey == "" {
			return nil, nil
		}
		return NewOpenAIAssistant(cfg.OpenAI), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

type OpenAIAssistant struct {
	client      *openai.Client
	model       string
	visionModel string
}

func NewOpenAIAssistant(cfg config.OpenAIConfig) *OpenAIAssistant {
	return &OpenAIAssistant{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
	}
}

func (a *OpenAIAssistant) StreamChat(ctx context.Context, messages []models.ChatMessage) (ChatStream, error) {
	chatMessages := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: chatSystemPrompt,
	}}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    chatMessages,
		MaxTokens:   800,
		Temperature: 0.7,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}
	return &openAIStream{stream: stream}, nil
}

func (a *OpenAIAssistant) AnalyzeImage(ctx context.Context, image []byte, mimeType string) (string, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: visionPrompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailAuto,
					}},
				},
			},
		},
		MaxTokens: 1200,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vision model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *OpenAIAssistant) Close() error { return nil }

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}
