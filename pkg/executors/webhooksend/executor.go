// Package webhooksend implements the webhook send node: templated message
// delivery to a chat-style incoming webhook (Slack, Discord and compatible).
package webhooksend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"

	"github.com/loomhq/loom/pkg/engine"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
	"github.com/loomhq/loom/pkg/template"
)

const defaultTimeout = 30 * time.Second

type config struct {
	WebhookURL   string
	Content      string
	VariableName string
}

type Executor struct {
	client *http.Client
}

func NewExecutor(client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Executor{client: client}
}

func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindWebhookSend
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"webhookUrl": map[string]any{
				"type":        "string",
				"description": "Incoming webhook URL to post to",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Message template. Supports {{variable}} and {{json variable}}",
			},
			"variableName": map[string]any{
				"type":        "string",
				"description": "Context key the delivered message is stored under",
			},
		},
		"required": []string{"webhookUrl", "content", "variableName"},
	}
}

func (e *Executor) Execute(ctx context.Context, input protocol.ExecutorInput) (models.Context, error) {
	input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusLoading)

	fail := func(err error) (models.Context, error) {
		input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

		return nil, err
	}

	cfg, err := parseConfig(input.Node.Config)
	if err != nil {
		return fail(engine.NonRetriable(err))
	}

	rendered, err := template.Render(cfg.Content, input.Context)
	if err != nil {
		return fail(engine.NonRetriable(fmt.Errorf("failed to render content template: %w", err)))
	}

	// Authored content passes through an HTML editor; decode entities so the
	// delivered message reads as written.
	message := html.UnescapeString(rendered)

	_, err = input.Steps.Run(ctx, "webhook-send", func(ctx context.Context) (any, error) {
		return nil, e.deliver(ctx, cfg.WebhookURL, message)
	})
	if err != nil {
		return fail(err)
	}

	next := input.Context.With(cfg.VariableName, map[string]any{
		"messageContent": message,
	})

	input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusSuccess)

	return next, nil
}

func (e *Executor) deliver(ctx context.Context, webhookURL, message string) error {
	payload, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return engine.NonRetriable(fmt.Errorf("failed to build webhook request: %w", err))
	}

	request.Header.Set("Content-Type", "application/json")

	response, err := e.client.Do(request)
	if err != nil {
		return engine.Retriable(fmt.Errorf("webhook delivery failed: %w", err))
	}

	defer func() {
		_ = response.Body.Close()
	}()

	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode >= http.StatusInternalServerError {
		return engine.Retriable(fmt.Errorf("webhook returned %s", response.Status))
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return engine.NonRetriablef("webhook returned %s", response.Status)
	}

	return nil
}

func parseConfig(raw map[string]any) (config, error) {
	cfg := config{}

	webhookURL, ok := raw["webhookUrl"].(string)
	if !ok || webhookURL == "" {
		return cfg, errors.New("webhook URL is required")
	}

	cfg.WebhookURL = webhookURL

	content, ok := raw["content"].(string)
	if !ok || content == "" {
		return cfg, errors.New("content is required")
	}

	cfg.Content = content

	name, ok := raw["variableName"].(string)
	if !ok || name == "" {
		return cfg, errors.New("variable name is required")
	}

	cfg.VariableName = name

	return cfg, nil
}
