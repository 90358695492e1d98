package storage

const schema = `
CREATE TABLE IF NOT EXISTS releases (
	pipeline_id TEXT PRIMARY KEY,
	tag TEXT NOT NULL,
	package_name TEXT NOT NULL,
	repo_owner TEXT,
	repo_name TEXT,
	release_id INTEGER,
	submitted_at TIMESTAMP NOT NULL,
	state TEXT NOT NULL DEFAULT 'PENDING',
	current_stage TEXT,
	build_state TEXT,
	publish_state TEXT,
	docs_state TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_releases_submitted_at ON releases(submitted_at DESC);
CREATE INDEX IF NOT EXISTS idx_releases_tag ON releases(tag);
`
