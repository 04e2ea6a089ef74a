package postgresql_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/loomhq/loom/pkg/engine"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/persistence/postgresql"
	"github.com/loomhq/loom/pkg/protocol"
)

var postgresContainer *postgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"step_results", "credentials", "executions", "workflow_connections", "workflow_nodes", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("loom_test"),
			postgres.WithUsername("loom"),
			postgres.WithPassword("loom"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx
}

func TestWorkflowRepository_SaveAndLoadGraph(t *testing.T) {
	p, ctx := setupTestDB(t)

	credentialID := uuid.New().String()
	graph := &models.WorkflowGraph{
		WorkflowID:  uuid.New().String(),
		Name:        "Order processing",
		OwnerUserID: "user-1",
		Metadata:    map[string]any{"color": "blue"},
		Nodes: []*models.Node{
			{ID: "trigger", Kind: models.NodeKindManualTrigger, Name: "Start"},
			{
				ID:     "fetch",
				Kind:   models.NodeKindHTTPRequest,
				Name:   "Fetch order",
				Config: map[string]any{"endpoint": "https://api.example.com/orders", "method": "GET"},
			},
			{
				ID:           "summarize",
				Kind:         models.NodeKindAIGenerate,
				Name:         "Summarize",
				Config:       map[string]any{"variableName": "summary", "userPrompt": "Summarize {{json fetch}}"},
				CredentialID: &credentialID,
			},
		},
		Connections: []*models.Connection{
			{ID: "c1", FromNodeID: "trigger", ToNodeID: "fetch"},
			{ID: "c2", FromNodeID: "fetch", ToNodeID: "summarize"},
		},
	}

	require.NoError(t, p.WorkflowRepository().SaveGraph(ctx, graph))

	loaded, err := p.WorkflowRepository().LoadGraph(ctx, graph.WorkflowID)
	require.NoError(t, err)

	assert.Equal(t, graph.Name, loaded.Name)
	assert.Equal(t, graph.OwnerUserID, loaded.OwnerUserID)
	assert.Equal(t, map[string]any{"color": "blue"}, loaded.Metadata)
	require.Len(t, loaded.Nodes, 3)
	assert.Equal(t, "trigger", loaded.Nodes[0].ID)
	assert.Equal(t, models.NodeKindAIGenerate, loaded.Nodes[2].Kind)
	require.NotNil(t, loaded.Nodes[2].CredentialID)
	assert.Equal(t, credentialID, *loaded.Nodes[2].CredentialID)
	assert.Len(t, loaded.Connections, 2)
}

func TestWorkflowRepository_SaveGraphReplacesNodes(t *testing.T) {
	p, ctx := setupTestDB(t)

	graph := &models.WorkflowGraph{
		WorkflowID:  uuid.New().String(),
		Name:        "Before",
		OwnerUserID: "user-1",
		Nodes:       []*models.Node{{ID: "a", Kind: models.NodeKindManualTrigger}},
	}

	require.NoError(t, p.WorkflowRepository().SaveGraph(ctx, graph))

	graph.Name = "After"
	graph.Nodes = []*models.Node{{ID: "b", Kind: models.NodeKindHTTPRequest, Config: map[string]any{"endpoint": "https://example.com"}}}

	require.NoError(t, p.WorkflowRepository().SaveGraph(ctx, graph))

	loaded, err := p.WorkflowRepository().LoadGraph(ctx, graph.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, "After", loaded.Name)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, "b", loaded.Nodes[0].ID)
}

func TestWorkflowRepository_LoadMissingGraph(t *testing.T) {
	p, ctx := setupTestDB(t)

	_, err := p.WorkflowRepository().LoadGraph(ctx, uuid.New().String())
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestExecutionRepository_Lifecycle(t *testing.T) {
	p, ctx := setupTestDB(t)

	record := &models.ExecutionRecord{
		ID:         uuid.New().String(),
		WorkflowID: "wf-1",
		EventID:    uuid.New().String(),
		Status:     models.ExecutionStatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	require.NoError(t, p.ExecutionRepository().Create(ctx, record))
	assert.ErrorIs(t, p.ExecutionRepository().Create(ctx, record), persistence.ErrExecutionAlreadyExists)

	byEvent, err := p.ExecutionRepository().FindByEventID(ctx, record.EventID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, byEvent.ID)

	completedAt := time.Now().UTC()
	require.NoError(t, p.ExecutionRepository().UpdateTerminal(ctx, record.ID, protocol.ExecutionRecordPatch{
		Status:      models.ExecutionStatusSuccess,
		CompletedAt: &completedAt,
		Output:      models.Context{"result": "ok"},
	}))

	// The second terminal write must be refused.
	message := "late failure"
	err = p.ExecutionRepository().UpdateTerminal(ctx, record.ID, protocol.ExecutionRecordPatch{
		Status:      models.ExecutionStatusFailed,
		CompletedAt: &completedAt,
		Error:       &message,
	})
	assert.True(t, errors.Is(err, engine.ErrRecordAlreadyTerminal))

	final, err := p.ExecutionRepository().GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, final.Status)
	assert.Equal(t, "ok", final.Output["result"])
	assert.Nil(t, final.Error)
}

func TestExecutionRepository_List(t *testing.T) {
	p, ctx := setupTestDB(t)

	base := time.Now().UTC()

	for i, id := range []string{"exec-1", "exec-2", "exec-3"} {
		require.NoError(t, p.ExecutionRepository().Create(ctx, &models.ExecutionRecord{
			ID:         id,
			WorkflowID: "wf-1",
			EventID:    uuid.New().String(),
			Status:     models.ExecutionStatusRunning,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := p.ExecutionRepository().ListExecutions(ctx, "wf-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "exec-3", records[0].ID)
	assert.Equal(t, "exec-2", records[1].ID)

	next, err := p.ExecutionRepository().ListExecutions(ctx, "wf-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "exec-1", next[0].ID)
}

func TestCredentialRepository_RoundTrip(t *testing.T) {
	p, ctx := setupTestDB(t)

	credential := &models.Credential{
		ID:          uuid.New().String(),
		Name:        "provider key",
		Type:        "api_key",
		Value:       "ciphertext",
		OwnerUserID: "user-1",
		CreatedAt:   time.Now().UTC(),
	}

	require.NoError(t, p.CredentialRepository().SaveCredential(ctx, credential))

	loaded, err := p.CredentialRepository().CredentialByID(ctx, credential.ID)
	require.NoError(t, err)
	assert.Equal(t, "ciphertext", loaded.Value)

	require.NoError(t, p.CredentialRepository().DeleteCredential(ctx, credential.ID))

	_, err = p.CredentialRepository().CredentialByID(ctx, credential.ID)
	assert.ErrorIs(t, err, persistence.ErrCredentialNotFound)
}

func TestStepLedger_FirstWriteWins(t *testing.T) {
	p, ctx := setupTestDB(t)

	runID := uuid.New().String()

	_, found, err := p.StepLedger().GetStepResult(ctx, runID, "node-1:http-request")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, p.StepLedger().PutStepResult(ctx, runID, "node-1:http-request", []byte(`{"status":200}`)))
	require.NoError(t, p.StepLedger().PutStepResult(ctx, runID, "node-1:http-request", []byte(`{"status":500}`)))

	stored, found, err := p.StepLedger().GetStepResult(ctx, runID, "node-1:http-request")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"status":200}`, string(stored))
}

func TestHealthCheck(t *testing.T) {
	p, ctx := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}
