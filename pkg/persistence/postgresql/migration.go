package postgresql

// migrations returns the ordered schema migrations for the approval workflow
// store. Steps and approvals are embedded as JSONB: the engine always loads
// and saves an instance as a whole under its single-writer boundary, so
// row-per-step normalization buys nothing here.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_templates (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				batch_type VARCHAR(32) NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT FALSE,
				is_default BOOLEAN NOT NULL DEFAULT FALSE,
				steps JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_templates_batch_type
				ON workflow_templates(batch_type);

			-- At most one default template per batch type
			CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_default_per_batch_type
				ON workflow_templates(batch_type) WHERE is_default;
		`,
		2: `
			CREATE TABLE IF NOT EXISTS workflow_instances (
				id UUID PRIMARY KEY,
				template_id UUID NOT NULL,
				entity_type VARCHAR(32) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				status VARCHAR(16) NOT NULL,
				current_step_index INTEGER NOT NULL DEFAULT 0,
				steps JSONB NOT NULL DEFAULT '[]',
				created_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				completed_date TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_instances_status
				ON workflow_instances(status);

			CREATE INDEX IF NOT EXISTS idx_instances_entity
				ON workflow_instances(entity_type, entity_id);
		`,
	}
}
