package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
)

// WorkflowRepository stores workflow graphs normalized over the workflows,
// workflow_nodes, and workflow_connections tables.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

func (r *WorkflowRepository) LoadGraph(ctx context.Context, workflowID string) (*models.WorkflowGraph, error) {
	graph := &models.WorkflowGraph{WorkflowID: workflowID}

	var metadata []byte

	err := r.db.QueryRowContext(ctx,
		"SELECT name, owner_user_id, metadata FROM workflows WHERE id = $1",
		workflowID,
	).Scan(&graph.Name, &graph.OwnerUserID, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query workflow %s: %w", workflowID, err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &graph.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode workflow metadata: %w", err)
		}
	}

	if graph.Nodes, err = r.loadNodes(ctx, workflowID); err != nil {
		return nil, err
	}

	if graph.Connections, err = r.loadConnections(ctx, workflowID); err != nil {
		return nil, err
	}

	return graph, nil
}

func (r *WorkflowRepository) loadNodes(ctx context.Context, workflowID string) ([]*models.Node, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, name, config, credential_id
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY position, id
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes of workflow %s: %w", workflowID, err)
	}
	defer rows.Close()

	var nodes []*models.Node

	for rows.Next() {
		node := &models.Node{}

		var config []byte

		if err := rows.Scan(&node.ID, &node.Kind, &node.Name, &config, &node.CredentialID); err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}

		if len(config) > 0 {
			if err := json.Unmarshal(config, &node.Config); err != nil {
				return nil, fmt.Errorf("failed to decode config of node %s: %w", node.ID, err)
			}
		}

		nodes = append(nodes, node)
	}

	return nodes, rows.Err()
}

func (r *WorkflowRepository) loadConnections(ctx context.Context, workflowID string) ([]*models.Connection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, from_node_id, from_output, to_node_id, to_input
		FROM workflow_connections
		WHERE workflow_id = $1
		ORDER BY id
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections of workflow %s: %w", workflowID, err)
	}
	defer rows.Close()

	var connections []*models.Connection

	for rows.Next() {
		connection := &models.Connection{}

		err := rows.Scan(&connection.ID, &connection.FromNodeID, &connection.FromOutput,
			&connection.ToNodeID, &connection.ToInput)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection row: %w", err)
		}

		connections = append(connections, connection)
	}

	return connections, rows.Err()
}

// SaveGraph upserts the workflow row and replaces its nodes and connections
// in one transaction.
func (r *WorkflowRepository) SaveGraph(ctx context.Context, graph *models.WorkflowGraph) error {
	if graph.WorkflowID == "" {
		return fmt.Errorf("workflow id is required")
	}

	metadata, err := json.Marshal(graph.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode workflow metadata: %w", err)
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO workflows (id, name, owner_user_id, metadata, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			owner_user_id = EXCLUDED.owner_user_id,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
	`, graph.WorkflowID, graph.Name, graph.OwnerUserID, metadata)
	if err != nil {
		return fmt.Errorf("failed to upsert workflow %s: %w", graph.WorkflowID, err)
	}

	if _, err := transaction.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", graph.WorkflowID); err != nil {
		return fmt.Errorf("failed to clear nodes: %w", err)
	}

	if _, err := transaction.ExecContext(ctx, "DELETE FROM workflow_connections WHERE workflow_id = $1", graph.WorkflowID); err != nil {
		return fmt.Errorf("failed to clear connections: %w", err)
	}

	for position, node := range graph.Nodes {
		config, err := json.Marshal(node.Config)
		if err != nil {
			return fmt.Errorf("failed to encode config of node %s: %w", node.ID, err)
		}

		_, err = transaction.ExecContext(ctx, `
			INSERT INTO workflow_nodes (workflow_id, id, kind, name, config, credential_id, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, graph.WorkflowID, node.ID, node.Kind, node.Name, config, node.CredentialID, position)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}

	for _, connection := range graph.Connections {
		_, err = transaction.ExecContext(ctx, `
			INSERT INTO workflow_connections (workflow_id, id, from_node_id, from_output, to_node_id, to_input)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, graph.WorkflowID, connection.ID, connection.FromNodeID, connection.FromOutput,
			connection.ToNodeID, connection.ToInput)
		if err != nil {
			return fmt.Errorf("failed to insert connection %s: %w", connection.ID, err)
		}
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit workflow %s: %w", graph.WorkflowID, err)
	}

	return nil
}

func (r *WorkflowRepository) Workflows(ctx context.Context) ([]*models.WorkflowGraph, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM workflows ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan workflow id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	graphs := make([]*models.WorkflowGraph, 0, len(ids))

	for _, id := range ids {
		graph, err := r.LoadGraph(ctx, id)
		if err != nil {
			return nil, err
		}

		graphs = append(graphs, graph)
	}

	return graphs, nil
}

func (r *WorkflowRepository) DeleteGraph(ctx context.Context, workflowID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", workflowID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("workflow %s: %w", workflowID, persistence.ErrWorkflowNotFound)
	}

	return nil
}
