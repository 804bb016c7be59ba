package llm

import (
	"context"
	"net/http"
	"strings"
)

type OllamaProvider struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

var _ Generator = (*OllamaProvider)(nil)

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	return &OllamaProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  &http.Client{Timeout: 2 * requestTimeout},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	messages := make([]ollamaMessage, 0, 2)
	if systemInstruction != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: systemInstruction})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: prompt})

	var resp ollamaChatResponse
	req := ollamaChatRequest{Model: o.Model, Messages: messages, Stream: false}
	if err := postJSON(ctx, o.Client, "ollama", o.BaseURL+"/api/chat", nil, req, &resp); err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
