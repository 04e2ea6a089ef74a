package webhooksend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/engine"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
	"github.com/loomhq/loom/pkg/steps"
)

type statusRecorder struct {
	statuses []models.NodeStatus
}

func (r *statusRecorder) Publish(_ context.Context, _ models.NodeKind, _ string, status models.NodeStatus) {
	r.statuses = append(r.statuses, status)
}

func newInput(node *models.Node, execContext models.Context) (protocol.ExecutorInput, *statusRecorder) {
	recorder := &statusRecorder{}

	return protocol.ExecutorInput{
		Node:    node,
		Context: execContext,
		Steps:   steps.NewRunner(steps.NewMemoryLedger(), "run-1", slog.Default()),
		Status:  recorder,
		Logger:  slog.Default(),
	}, recorder
}

func TestWebhookSendDeliversRenderedMessage(t *testing.T) {
	var received []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	executor := NewExecutor(server.Client())

	node := &models.Node{
		ID:   "hook-1",
		Kind: models.NodeKindWebhookSend,
		Config: map[string]any{
			"webhookUrl":   server.URL,
			"content":      "Deploy finished: {{release.version}}",
			"variableName": "notification",
		},
	}

	input, recorder := newInput(node, models.Context{"release": map[string]any{"version": "1.4.0"}})

	result, err := executor.Execute(context.Background(), input)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(received, &payload))
	assert.Equal(t, "Deploy finished: 1.4.0", payload["content"])

	stored, ok := result["notification"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Deploy finished: 1.4.0", stored["messageContent"])
	assert.Equal(t, []models.NodeStatus{models.NodeStatusLoading, models.NodeStatusSuccess}, recorder.statuses)
}

func TestWebhookSendDecodesHTMLEntities(t *testing.T) {
	var received []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor := NewExecutor(server.Client())

	node := &models.Node{
		ID:   "hook-1",
		Kind: models.NodeKindWebhookSend,
		Config: map[string]any{
			"webhookUrl":   server.URL,
			"content":      "Tom &amp; Jerry &lt;3",
			"variableName": "notification",
		},
	}

	input, _ := newInput(node, models.Context{})

	_, err := executor.Execute(context.Background(), input)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(received, &payload))
	assert.Equal(t, "Tom & Jerry <3", payload["content"])
}

func TestWebhookSendMissingConfigFailsNonRetriably(t *testing.T) {
	executor := NewExecutor(nil)

	cases := []struct {
		name   string
		config map[string]any
	}{
		{name: "missing webhook url", config: map[string]any{"content": "hi", "variableName": "v"}},
		{name: "missing content", config: map[string]any{"webhookUrl": "https://example.com", "variableName": "v"}},
		{name: "missing variable name", config: map[string]any{"webhookUrl": "https://example.com", "content": "hi"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node := &models.Node{ID: "hook-1", Kind: models.NodeKindWebhookSend, Config: tc.config}
			input, recorder := newInput(node, models.Context{})

			_, err := executor.Execute(context.Background(), input)
			require.Error(t, err)

			assert.False(t, engine.IsRetriable(err))
			assert.Equal(t, []models.NodeStatus{models.NodeStatusLoading, models.NodeStatusError}, recorder.statuses)
		})
	}
}

func TestWebhookSendServerErrorIsRetriable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	executor := NewExecutor(server.Client())

	node := &models.Node{
		ID:   "hook-1",
		Kind: models.NodeKindWebhookSend,
		Config: map[string]any{
			"webhookUrl":   server.URL,
			"content":      "hi",
			"variableName": "notification",
		},
	}

	input, _ := newInput(node, models.Context{})

	_, err := executor.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, engine.IsRetriable(err))
}
