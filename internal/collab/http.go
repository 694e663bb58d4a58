package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HTTPGenerator calls a hosted text-generation endpoint with a
// prompt-in/text-out contract.
type HTTPGenerator struct {
	URL    string
	Client *http.Client
}

func NewHTTPGenerator(url string) *HTTPGenerator {
	return &HTTPGenerator{URL: url, Client: &http.Client{Timeout: 60 * time.Second}}
}

func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, _ := json.Marshal(map[string]string{"prompt": prompt})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation endpoint returned %d", resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// HTTPEmbedder calls a hosted embedding endpoint.
type HTTPEmbedder struct {
	URL    string
	Client *http.Client
}

func NewHTTPEmbedder(url string) *HTTPEmbedder {
	return &HTTPEmbedder{URL: url, Client: &http.Client{Timeout: 30 * time.Second}}
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(map[string]string{"text": text})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned %d", resp.StatusCode)
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

// LogNotifier is the fallback Notifier used when no messaging transport
// is configured: it logs the delivery instead of sending it. Delivery is
// best effort everywhere, so callers behave identically.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Deliver(ctx context.Context, target DeliveryTarget, message string) error {
	n.Logger.Info("delivery (log transport)", "chat", target.ChatID, "recipient", target.RecipientID, "message", message)
	return nil
}
