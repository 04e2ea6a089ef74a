// Package models defines the core domain models for graph-based workflow execution.
package models

// NodeKind identifies which executor handles a node. The set of kinds is
// closed: every kind that can appear in a stored graph is registered at
// process start.
type NodeKind string

const (
	NodeKindManualTrigger  NodeKind = "manual-trigger"
	NodeKindFormTrigger    NodeKind = "form-trigger"
	NodeKindPaymentTrigger NodeKind = "payment-trigger"
	NodeKindHTTPRequest    NodeKind = "http-request"
	NodeKindAIGenerate     NodeKind = "ai-generate"
	NodeKindWebhookSend    NodeKind = "webhook-send"
)

// Node is a single typed node of a workflow graph. Nodes are immutable once
// loaded for a run; Config is an opaque payload interpreted only by the
// executor registered for Kind.
type Node struct {
	ID           string         `json:"id"            validate:"required"`
	Kind         NodeKind       `json:"kind"          validate:"required"`
	Name         string         `json:"name"`
	Config       map[string]any `json:"config"`
	CredentialID *string        `json:"credential_id,omitempty"`
}

// Connection is a directed edge between two nodes: FromNodeID must execute
// before ToNodeID. Multiple connections may share endpoints (fan-out/fan-in).
type Connection struct {
	ID         string `json:"id"`
	FromNodeID string `json:"from_node_id" validate:"required"`
	FromOutput string `json:"from_output"`
	ToNodeID   string `json:"to_node_id"   validate:"required"`
	ToInput    string `json:"to_input"`
}

// WorkflowGraph is the immutable snapshot of a workflow taken at run start.
// Mutations to the authored graph after a run starts do not affect that run.
type WorkflowGraph struct {
	WorkflowID  string         `json:"workflow_id"`
	Name        string         `json:"name"`
	OwnerUserID string         `json:"owner_user_id"`
	Nodes       []*Node        `json:"nodes"`
	Connections []*Connection  `json:"connections"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (g *WorkflowGraph) NodeByID(id string) *Node {
	for _, node := range g.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// NodeStatus is the ephemeral per-node state broadcast to observers during a
// run. It is never read back by the engine.
type NodeStatus string

const (
	NodeStatusInitial NodeStatus = "initial"
	NodeStatusLoading NodeStatus = "loading"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
)
