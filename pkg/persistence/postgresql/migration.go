package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow mirror
			CREATE TABLE workflows (
				id BIGSERIAL PRIMARY KEY,
				external_id TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT FALSE,
				version_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_lower_name ON workflows(lower(name));

			CREATE TABLE tags (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX idx_tags_lower_name ON tags(lower(name));

			CREATE TABLE workflow_tags (
				workflow_id BIGINT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				PRIMARY KEY (workflow_id, tag_id)
			);

			CREATE INDEX idx_workflow_tags_tag_id ON workflow_tags(tag_id);
		`,
		2: `
			-- Users are managed by the product; only shareable fields live here.
			CREATE TABLE users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				email TEXT NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE user_credentials (
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				provider TEXT NOT NULL,
				external_id TEXT NOT NULL,
				display_name TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (user_id, provider)
			);
		`,
		3: `
			-- Per-user overlays
			CREATE TABLE workflow_user_settings (
				user_id TEXT NOT NULL,
				workflow_id BIGINT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (user_id, workflow_id)
			);

			CREATE INDEX idx_workflow_user_settings_workflow_id ON workflow_user_settings(workflow_id);

			CREATE TABLE workflow_prompts (
				user_id TEXT NOT NULL,
				workflow_id BIGINT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				content TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (user_id, workflow_id)
			);
		`,
	}
}
