package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const systemInstruction = `You are Whop AI, an assistant taking part in a chat conversation.
Answer the last message directly and keep replies short enough to read in a chat window.`

type GeminiConfig struct {
	APIKey    string
	ModelName string
}

// Gemini streams replies from Google's Gemini models.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *zap.Logger
}

func NewGemini(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.7),
		MaxOutputTokens: genai.Ptr[int32](1024),
	}

	logger.Info("gemini client initialized", zap.String("model", cfg.ModelName))

	return &Gemini{client: client, model: model, logger: logger}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Reply(ctx context.Context, history []Turn, prompt string, onDelta func(string)) (string, error) {
	session := g.model.StartChat()
	session.History = buildHistory(history)

	iter := session.SendMessageStream(ctx, genai.Text(prompt))

	var reply strings.Builder
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			g.logger.Error("gemini stream failed", zap.Error(err), zap.Int("received", reply.Len()))
			return "", fmt.Errorf("gemini API error: %w", err)
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				text, ok := part.(genai.Text)
				if !ok || text == "" {
					continue
				}
				reply.WriteString(string(text))
				if onDelta != nil {
					onDelta(string(text))
				}
			}
		}
	}

	if reply.Len() == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}
	return reply.String(), nil
}

// buildHistory converts turns to Gemini contents, merging consecutive turns
// of the same role.
func buildHistory(turns []Turn) []*genai.Content {
	var contents []*genai.Content
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		role := "user"
		if t.FromAssistant {
			role = "model"
		}

		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, genai.Text(t.Text))
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return contents
}
