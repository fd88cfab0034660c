package app

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/mmayman666/Otouri-app-final-sub001/app/config"
	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiAssistant serves chat and vision through Google's Gemini models.
type GeminiAssistant struct {
	client *genai.Client
	model  string
}

func NewGeminiAssistant(ctx context.Context, cfg config.GeminiConfig) (*GeminiAssistant, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}
	return &GeminiAssistant{client: client, model: cfg.Model}, nil
}

func (g *GeminiAssistant) StreamChat(ctx context.Context, messages []models.ChatMessage) (ChatStream, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages")
	}
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(chatSystemPrompt)}}

	cs := model.StartChat()
	for _, m := range messages[:len(messages)-1] {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	last := messages[len(messages)-1]
	it := cs.SendMessageStream(ctx, genai.Text(last.Content))

	// Pull the first chunk now so a provider failure surfaces before any byte is sent.
	first, err := it.Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		return nil, err
	}
	return &geminiStream{it: it, first: first, done: errors.Is(err, iterator.Done)}, nil
}

func (g *GeminiAssistant) AnalyzeImage(ctx context.Context, image []byte, mimeType string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.ResponseMIMEType = "application/json"

	format := strings.TrimPrefix(mimeType, "image/")
	resp, err := model.GenerateContent(ctx, genai.ImageData(format, image), genai.Text(visionPrompt))
	if err != nil {
		return "", err
	}
	text := responseText(resp)
	if text == "" {
		return "", errors.New("vision model returned no text")
	}
	return text, nil
}

func (g *GeminiAssistant) Close() error {
	return g.client.Close()
}

type geminiStream struct {
	it    *genai.GenerateContentResponseIterator
	first *genai.GenerateContentResponse
	done  bool
}

func (s *geminiStream) Recv() (string, error) {
	for {
		if s.first != nil {
			resp := s.first
			s.first = nil
			if text := responseText(resp); text != "" {
				return text, nil
			}
			continue
		}
		if s.done {
			return "", io.EOF
		}
		resp, err := s.it.Next()
		if errors.Is(err, iterator.Done) {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
}

func (s *geminiStream) Close() error { return nil }

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String()
}
