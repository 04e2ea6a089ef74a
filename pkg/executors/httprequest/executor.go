// Package httprequest implements the HTTP request node: a templated call to
// an external endpoint whose response becomes part of the execution context.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loomhq/loom/pkg/engine"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
	"github.com/loomhq/loom/pkg/template"
)

const defaultTimeout = 30 * time.Second

type config struct {
	Endpoint     string
	Method       string
	Body         string
	VariableName string
}

type Executor struct {
	client *http.Client
}

// NewExecutor creates the HTTP request executor. A nil client gets a default
// with a bounded timeout so a hung endpoint cannot wedge the run.
func NewExecutor(client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Executor{client: client}
}

func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindHTTPRequest
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"endpoint": map[string]any{
				"type":        "string",
				"description": "URL to request. Supports {{variable}} and {{json variable}} templates",
			},
			"method": map[string]any{
				"type":    "string",
				"default": "GET",
				"enum":    []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body for POST/PUT/PATCH. Must render to valid JSON",
			},
			"variableName": map[string]any{
				"type":        "string",
				"description": "Context key the response is stored under; stored flat as httpResponse when omitted",
			},
		},
		"required": []string{"endpoint"},
	}
}

func (e *Executor) Execute(ctx context.Context, input protocol.ExecutorInput) (models.Context, error) {
	input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusLoading)

	cfg, err := parseConfig(input.Node.Config)
	if err != nil {
		input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

		return nil, engine.NonRetriable(err)
	}

	endpoint, err := template.Render(cfg.Endpoint, input.Context)
	if err != nil {
		input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

		return nil, engine.NonRetriable(fmt.Errorf("failed to render endpoint template: %w", err))
	}

	parsed, err := url.ParseRequestURI(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

		return nil, engine.NonRetriablef("rendered endpoint %q is not a valid URL", endpoint)
	}

	body := ""

	if hasBody(cfg.Method) {
		body, err = template.Render(cfg.Body, input.Context)
		if err != nil {
			input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

			return nil, engine.NonRetriable(fmt.Errorf("failed to render body template: %w", err))
		}

		if body != "" && !json.Valid([]byte(body)) {
			input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

			return nil, engine.NonRetriablef("rendered body is not valid JSON")
		}
	}

	result, err := input.Steps.Run(ctx, "http-request", func(ctx context.Context) (any, error) {
		return e.doRequest(ctx, cfg.Method, endpoint, body)
	})
	if err != nil {
		input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

		return nil, err
	}

	response, err := asMap(result)
	if err != nil {
		input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

		return nil, err
	}

	next := input.Context
	if cfg.VariableName != "" {
		next = next.With(cfg.VariableName, map[string]any{"httpResponse": response})
	} else {
		next = next.With("httpResponse", response)
	}

	input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusSuccess)

	return next, nil
}

func (e *Executor) doRequest(ctx context.Context, method, endpoint, body string) (map[string]any, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, engine.NonRetriable(fmt.Errorf("failed to build request: %w", err))
	}

	if hasBody(method) {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := e.client.Do(request)
	if err != nil {
		// Network failures and timeouts are transient from the run's point
		// of view.
		return nil, engine.Retriable(fmt.Errorf("request to %s failed: %w", endpoint, err))
	}

	defer func() {
		_ = response.Body.Close()
	}()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, engine.Retriable(fmt.Errorf("failed to read response body: %w", err))
	}

	var data any = string(raw)

	if strings.Contains(response.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			data = decoded
		}
	}

	if response.StatusCode >= http.StatusInternalServerError {
		return nil, engine.Retriable(fmt.Errorf("request to %s returned %s", endpoint, response.Status))
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, engine.NonRetriablef("request to %s returned %s", endpoint, response.Status)
	}

	return map[string]any{
		"status":     response.StatusCode,
		"statusText": http.StatusText(response.StatusCode),
		"data":       data,
	}, nil
}

func parseConfig(raw map[string]any) (config, error) {
	cfg := config{Method: http.MethodGet}

	endpoint, ok := raw["endpoint"].(string)
	if !ok || endpoint == "" {
		return cfg, errors.New("no endpoint configured")
	}

	cfg.Endpoint = endpoint

	if method, ok := raw["method"].(string); ok && method != "" {
		cfg.Method = strings.ToUpper(method)
	}

	if body, ok := raw["body"].(string); ok {
		cfg.Body = body
	}

	if name, ok := raw["variableName"].(string); ok {
		cfg.VariableName = name
	}

	return cfg, nil
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

func asMap(result any) (map[string]any, error) {
	typed, ok := result.(map[string]any)
	if !ok {
		return nil, protocol.ErrUnexpectedStepResult
	}

	return typed, nil
}
