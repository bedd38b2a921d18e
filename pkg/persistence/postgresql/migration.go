package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL DEFAULT 'draft',
				owner VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS workflow_nodes (
				id VARCHAR(255) NOT NULL,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				node_type VARCHAR(100) NOT NULL,
				name VARCHAR(255),
				config JSONB,
				position_x INTEGER NOT NULL DEFAULT 0,
				position_y INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (workflow_id, id)
			);

			CREATE TABLE IF NOT EXISTS workflow_connections (
				id VARCHAR(255) NOT NULL,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				source_node_id VARCHAR(255) NOT NULL,
				source_handle VARCHAR(100) NOT NULL DEFAULT 'main',
				target_node_id VARCHAR(255) NOT NULL,
				target_handle VARCHAR(100) NOT NULL DEFAULT 'main',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (workflow_id, id)
			);

			CREATE TABLE IF NOT EXISTS executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				status VARCHAR(20) NOT NULL,
				error TEXT,
				correlation_id VARCHAR(255),
				cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions(workflow_id);

			CREATE TABLE IF NOT EXISTS execution_steps (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(100) NOT NULL,
				status VARCHAR(20) NOT NULL,
				step_order INTEGER NOT NULL,
				input JSONB,
				output JSONB,
				error TEXT,
				stack TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_execution_steps_execution_id ON execution_steps(execution_id);

			CREATE TABLE IF NOT EXISTS credentials (
				id UUID PRIMARY KEY,
				owner VARCHAR(255) NOT NULL,
				credential_type VARCHAR(100) NOT NULL,
				encrypted_value TEXT NOT NULL,
				encrypted_refresh_token TEXT,
				expires_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_credentials_owner ON credentials(owner);

			CREATE TABLE IF NOT EXISTS durable_steps (
				execution_id UUID NOT NULL,
				step_key VARCHAR(255) NOT NULL,
				output JSONB,
				committed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (execution_id, step_key)
			);
		`,
	}
}
