package aigenerate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
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

type fakeCredentialStore struct {
	credentials map[string]*models.Credential
}

func (s *fakeCredentialStore) GetCredential(_ context.Context, id, ownerUserID string) (*models.Credential, error) {
	credential, ok := s.credentials[id]
	if !ok || credential.OwnerUserID != ownerUserID {
		return nil, fmt.Errorf("credential %s not found", id)
	}

	return credential, nil
}

func newGenerationServer(t *testing.T, text string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), "unexpected path %s", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("x-goog-api-key"))

		response := map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"parts": []any{
							map[string]any{"text": text},
						},
					},
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
}

func TestAIGenerateStoresResponseUnderVariableName(t *testing.T) {
	server := newGenerationServer(t, "generated summary")
	defer server.Close()

	store := &fakeCredentialStore{credentials: map[string]*models.Credential{
		"cred-1": {ID: "cred-1", OwnerUserID: "user-1", Value: "secret-key"},
	}}

	executor := NewExecutor(store, NewClient(server.URL, server.Client()))

	node := &models.Node{
		ID:   "ai-1",
		Kind: models.NodeKindAIGenerate,
		Config: map[string]any{
			"variableName": "summary",
			"userPrompt":   "Summarize {{json report}}",
			"credentialId": "cred-1",
		},
	}

	recorder := &statusRecorder{}

	input := protocol.ExecutorInput{
		Node:        node,
		Context:     models.Context{"report": map[string]any{"total": float64(3)}},
		Steps:       steps.NewRunner(steps.NewMemoryLedger(), "run-1", slog.Default()),
		Status:      recorder,
		OwnerUserID: "user-1",
		Logger:      slog.Default(),
	}

	result, err := executor.Execute(context.Background(), input)
	require.NoError(t, err)

	stored, ok := result["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"text": "generated summary"}, stored["aiResponse"])
	assert.Equal(t, []models.NodeStatus{models.NodeStatusLoading, models.NodeStatusSuccess}, recorder.statuses)
}

func TestAIGenerateKeepsCredentialOutOfStepLedger(t *testing.T) {
	server := newGenerationServer(t, "generated summary")
	defer server.Close()

	store := &fakeCredentialStore{credentials: map[string]*models.Credential{
		"cred-1": {ID: "cred-1", OwnerUserID: "user-1", Value: "secret-key"},
	}}

	executor := NewExecutor(store, NewClient(server.URL, server.Client()))

	node := &models.Node{
		ID:   "ai-1",
		Kind: models.NodeKindAIGenerate,
		Config: map[string]any{
			"variableName": "summary",
			"userPrompt":   "Summarize the report",
			"credentialId": "cred-1",
		},
	}

	ledger := steps.NewMemoryLedger()

	input := protocol.ExecutorInput{
		Node:        node,
		Context:     models.Context{},
		Steps:       steps.NewRunner(ledger, "run-1", slog.Default()).Scoped("ai-1"),
		Status:      &statusRecorder{},
		OwnerUserID: "user-1",
		Logger:      slog.Default(),
	}

	_, err := executor.Execute(context.Background(), input)
	require.NoError(t, err)

	// The decrypted API key must never reach the ledger: no credential step
	// exists, and the stored generation result carries only the text.
	_, found, err := ledger.GetStepResult(context.Background(), "run-1", "ai-1:get-credential")
	require.NoError(t, err)
	assert.False(t, found)

	stored, found, err := ledger.GetStepResult(context.Background(), "run-1", "ai-1:generate-text")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, string(stored), "secret-key")
}

func TestAIGenerateMissingConfigFailsNonRetriably(t *testing.T) {
	store := &fakeCredentialStore{credentials: map[string]*models.Credential{}}
	executor := NewExecutor(store, nil)

	cases := []struct {
		name   string
		config map[string]any
	}{
		{name: "missing variable name", config: map[string]any{"userPrompt": "hi", "credentialId": "c"}},
		{name: "missing user prompt", config: map[string]any{"variableName": "v", "credentialId": "c"}},
		{name: "missing credential id", config: map[string]any{"variableName": "v", "userPrompt": "hi"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := &statusRecorder{}

			input := protocol.ExecutorInput{
				Node:    &models.Node{ID: "ai-1", Kind: models.NodeKindAIGenerate, Config: tc.config},
				Context: models.Context{},
				Steps:   steps.NewRunner(steps.NewMemoryLedger(), "run-1", slog.Default()),
				Status:  recorder,
				Logger:  slog.Default(),
			}

			_, err := executor.Execute(context.Background(), input)
			require.Error(t, err)

			assert.False(t, engine.IsRetriable(err))
			assert.Equal(t, []models.NodeStatus{models.NodeStatusLoading, models.NodeStatusError}, recorder.statuses)
		})
	}
}

func TestAIGenerateUnknownCredentialFailsNonRetriably(t *testing.T) {
	store := &fakeCredentialStore{credentials: map[string]*models.Credential{}}
	executor := NewExecutor(store, nil)

	node := &models.Node{
		ID:   "ai-1",
		Kind: models.NodeKindAIGenerate,
		Config: map[string]any{
			"variableName": "summary",
			"userPrompt":   "hello",
			"credentialId": "missing",
		},
	}

	input := protocol.ExecutorInput{
		Node:        node,
		Context:     models.Context{},
		Steps:       steps.NewRunner(steps.NewMemoryLedger(), "run-1", slog.Default()),
		Status:      &statusRecorder{},
		OwnerUserID: "user-1",
		Logger:      slog.Default(),
	}

	_, err := executor.Execute(context.Background(), input)
	require.Error(t, err)
	assert.False(t, engine.IsRetriable(err))
}

func TestAIGenerateProviderErrorIsRetriable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	store := &fakeCredentialStore{credentials: map[string]*models.Credential{
		"cred-1": {ID: "cred-1", OwnerUserID: "user-1", Value: "secret-key"},
	}}

	executor := NewExecutor(store, NewClient(server.URL, server.Client()))

	node := &models.Node{
		ID:   "ai-1",
		Kind: models.NodeKindAIGenerate,
		Config: map[string]any{
			"variableName": "summary",
			"userPrompt":   "hello",
			"credentialId": "cred-1",
		},
	}

	input := protocol.ExecutorInput{
		Node:        node,
		Context:     models.Context{},
		Steps:       steps.NewRunner(steps.NewMemoryLedger(), "run-1", slog.Default()),
		Status:      &statusRecorder{},
		OwnerUserID: "user-1",
		Logger:      slog.Default(),
	}

	_, err := executor.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, engine.IsRetriable(err))
}
