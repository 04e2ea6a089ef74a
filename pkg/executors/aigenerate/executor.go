// Package aigenerate implements the AI generation node: templated prompts
// sent to a generation provider using a stored, user-owned credential.
package aigenerate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/loomhq/loom/pkg/engine"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
	"github.com/loomhq/loom/pkg/template"
)

const (
	defaultModel        = "gemini-2.5-flash-lite"
	defaultSystemPrompt = "You are a helpful assistant."
	defaultTimeout      = 60 * time.Second
)

type config struct {
	VariableName string
	Model        string
	SystemPrompt string
	UserPrompt   string
	CredentialID string
}

type Executor struct {
	credentials protocol.CredentialStore
	client      *Client
}

// NewExecutor creates the AI generation executor. The credential store is
// required; a nil client gets the default generation endpoint.
func NewExecutor(credentials protocol.CredentialStore, client *Client) *Executor {
	if client == nil {
		client = NewClient("", &http.Client{Timeout: defaultTimeout})
	}

	return &Executor{credentials: credentials, client: client}
}

func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindAIGenerate
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"variableName": map[string]any{
				"type":        "string",
				"description": "Context key the generated text is stored under",
			},
			"model": map[string]any{
				"type":    "string",
				"default": defaultModel,
			},
			"systemPrompt": map[string]any{
				"type":        "string",
				"description": "System prompt template",
			},
			"userPrompt": map[string]any{
				"type":        "string",
				"description": "User prompt template. Supports {{variable}} and {{json variable}}",
			},
			"credentialId": map[string]any{
				"type":        "string",
				"description": "Stored API key credential id",
			},
		},
		"required": []string{"variableName", "userPrompt", "credentialId"},
	}
}

func (e *Executor) Execute(ctx context.Context, input protocol.ExecutorInput) (models.Context, error) {
	input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusLoading)

	fail := func(err error) (models.Context, error) {
		input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

		return nil, err
	}

	cfg, err := parseConfig(input.Node)
	if err != nil {
		return fail(engine.NonRetriable(err))
	}

	systemPrompt := defaultSystemPrompt

	if cfg.SystemPrompt != "" {
		systemPrompt, err = template.Render(cfg.SystemPrompt, input.Context)
		if err != nil {
			return fail(engine.NonRetriable(fmt.Errorf("failed to render system prompt: %w", err)))
		}
	}

	userPrompt, err := template.Render(cfg.UserPrompt, input.Context)
	if err != nil {
		return fail(engine.NonRetriable(fmt.Errorf("failed to render user prompt: %w", err)))
	}

	// The credential is resolved outside the step ledger: the lookup is
	// read-only and replay-safe, and the decrypted value must never be
	// persisted.
	credential, err := e.credentials.GetCredential(ctx, cfg.CredentialID, input.OwnerUserID)
	if err != nil {
		return fail(engine.NonRetriable(fmt.Errorf("credential not found: %w", err)))
	}

	if credential.Value == "" {
		return fail(engine.NonRetriablef("credential %s has no API key set", cfg.CredentialID))
	}

	apiKey := credential.Value

	generated, err := input.Steps.Run(ctx, "generate-text", func(ctx context.Context) (any, error) {
		text, err := e.client.GenerateText(ctx, apiKey, cfg.Model, systemPrompt, userPrompt)
		if err != nil {
			return nil, err
		}

		return text, nil
	})
	if err != nil {
		return fail(err)
	}

	text, ok := generated.(string)
	if !ok {
		return fail(protocol.ErrUnexpectedStepResult)
	}

	next := input.Context.With(cfg.VariableName, map[string]any{
		"aiResponse": map[string]any{
			"text": text,
		},
	})

	input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusSuccess)

	return next, nil
}

func parseConfig(node *models.Node) (config, error) {
	cfg := config{Model: defaultModel}

	name, ok := node.Config["variableName"].(string)
	if !ok || name == "" {
		return cfg, errors.New("variable name is required")
	}

	cfg.VariableName = name

	prompt, ok := node.Config["userPrompt"].(string)
	if !ok || prompt == "" {
		return cfg, errors.New("user prompt is required")
	}

	cfg.UserPrompt = prompt

	if system, ok := node.Config["systemPrompt"].(string); ok {
		cfg.SystemPrompt = system
	}

	if model, ok := node.Config["model"].(string); ok && model != "" {
		cfg.Model = model
	}

	// The credential may be referenced from the node record or its config.
	if node.CredentialID != nil && *node.CredentialID != "" {
		cfg.CredentialID = *node.CredentialID
	} else if id, ok := node.Config["credentialId"].(string); ok {
		cfg.CredentialID = id
	}

	if cfg.CredentialID == "" {
		return cfg, errors.New("credential is required")
	}

	return cfg, nil
}
