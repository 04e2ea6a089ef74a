package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				owner_user_id VARCHAR(255) NOT NULL,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_workflows_owner_user_id ON workflows(owner_user_id);

			CREATE TABLE workflow_nodes (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				kind VARCHAR(100) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				config JSONB NOT NULL DEFAULT '{}',
				credential_id VARCHAR(255),
				position INT NOT NULL DEFAULT 0,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_nodes_workflow_id ON workflow_nodes(workflow_id);
			CREATE INDEX idx_workflow_nodes_kind ON workflow_nodes(kind);

			CREATE TABLE workflow_connections (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				from_node_id VARCHAR(255) NOT NULL,
				from_output VARCHAR(255) NOT NULL DEFAULT '',
				to_node_id VARCHAR(255) NOT NULL,
				to_input VARCHAR(255) NOT NULL DEFAULT '',
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_connections_workflow_id ON workflow_connections(workflow_id);

			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				event_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('RUNNING', 'SUCCESS', 'FAILED')),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				error TEXT,
				error_stack TEXT,
				output JSONB
			);

			CREATE UNIQUE INDEX idx_executions_event_id ON executions(event_id);
			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_started_at ON executions(started_at);

			CREATE TABLE credentials (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				type VARCHAR(100) NOT NULL,
				value TEXT NOT NULL,
				owner_user_id VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_credentials_owner_user_id ON credentials(owner_user_id);

			CREATE TABLE step_results (
				run_id VARCHAR(255) NOT NULL,
				step_name VARCHAR(512) NOT NULL,
				result JSONB NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (run_id, step_name)
			);

			CREATE INDEX idx_step_results_run_id ON step_results(run_id);
		`,
	}
}
