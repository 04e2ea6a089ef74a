// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"time"

	"github.com/loomhq/loom/pkg/models"
)

// SaveWorkflowRequest is the request body for creating or replacing a
// workflow graph.
type SaveWorkflowRequest struct {
	Name        string              `json:"name"          validate:"required,min=1"`
	OwnerUserID string              `json:"owner_user_id" validate:"required"`
	Nodes       []NodeRequest       `json:"nodes"         validate:"dive"`
	Connections []ConnectionRequest `json:"connections"   validate:"dive"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
}

// NodeRequest is one node of a submitted graph.
type NodeRequest struct {
	ID           string         `json:"id"            validate:"required"`
	Kind         string         `json:"kind"          validate:"required"`
	Name         string         `json:"name"`
	Config       map[string]any `json:"config"`
	CredentialID *string        `json:"credential_id,omitempty"`
}

// ConnectionRequest is one edge of a submitted graph.
type ConnectionRequest struct {
	ID         string `json:"id"           validate:"required"`
	FromNodeID string `json:"from_node_id" validate:"required"`
	FromOutput string `json:"from_output"`
	ToNodeID   string `json:"to_node_id"   validate:"required"`
	ToInput    string `json:"to_input"`
}

// ToGraph converts the request into the domain graph for a workflow id.
func (r SaveWorkflowRequest) ToGraph(workflowID string) *models.WorkflowGraph {
	graph := &models.WorkflowGraph{
		WorkflowID:  workflowID,
		Name:        r.Name,
		OwnerUserID: r.OwnerUserID,
		Metadata:    r.Metadata,
	}

	for _, node := range r.Nodes {
		graph.Nodes = append(graph.Nodes, &models.Node{
			ID:           node.ID,
			Kind:         models.NodeKind(node.Kind),
			Name:         node.Name,
			Config:       node.Config,
			CredentialID: node.CredentialID,
		})
	}

	for _, connection := range r.Connections {
		graph.Connections = append(graph.Connections, &models.Connection{
			ID:         connection.ID,
			FromNodeID: connection.FromNodeID,
			FromOutput: connection.FromOutput,
			ToNodeID:   connection.ToNodeID,
			ToInput:    connection.ToInput,
		})
	}

	return graph
}

// TriggerExecutionRequest is the request body for manually triggering a run.
type TriggerExecutionRequest struct {
	InitialData map[string]any `json:"initial_data,omitempty"`
}

// TriggerExecutionResponse acknowledges an accepted trigger. The event id can
// be polled against the executions endpoint.
type TriggerExecutionResponse struct {
	EventID    string `json:"event_id"`
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}

// CreateCredentialRequest is the request body for storing a credential.
type CreateCredentialRequest struct {
	Name        string `json:"name"          validate:"required,min=1"`
	Type        string `json:"type"          validate:"required"`
	Value       string `json:"value"         validate:"required"`
	OwnerUserID string `json:"owner_user_id" validate:"required"`
}

// CredentialResponse never carries the secret value.
type CredentialResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	OwnerUserID string    `json:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TransformCredentialResponse strips the value from a credential.
func TransformCredentialResponse(credential *models.Credential) CredentialResponse {
	return CredentialResponse{
		ID:          credential.ID,
		Name:        credential.Name,
		Type:        credential.Type,
		OwnerUserID: credential.OwnerUserID,
		CreatedAt:   credential.CreatedAt,
	}
}
