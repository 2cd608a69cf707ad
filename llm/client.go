package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	maxAttempts  = 3
	retryBackoff = 2 * time.Second
)

// Client spricht eine Chat-Completion-API (OpenAI-kompatibel) an.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	backoff    time.Duration
}

// NewClient erstellt einen Client für die konfigurierte Chat-Completion-API.
func NewClient(endpoint, model, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		backoff:    retryBackoff,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete schickt System-Prompt und Inhalt an das Modell und gibt die Completion zurück.
// Bis zu drei Versuche mit festem Abstand; der letzte Fehler wird durchgereicht.
func (c *Client) Complete(ctx context.Context, systemPrompt, content string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		result, err := c.complete(ctx, systemPrompt, content)
		if err == nil {
			return result, nil
		}
		lastErr = err
		c.logger.Error("LLM-Aufruf fehlgeschlagen", zap.Int("attempt", attempt), zap.Error(err))
	}
	return "", fmt.Errorf("llm nach %d Versuchen fehlgeschlagen: %w", maxAttempts, lastErr)
}

func (c *Client) complete(ctx context.Context, systemPrompt, content string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("leere Completion-Antwort")
	}
	return chatResp.Choices[0].Message.Content, nil
}
