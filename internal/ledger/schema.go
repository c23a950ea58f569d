package ledger

// SchemaSQL is the complete ledger schema. It is applied on every open and
// is idempotent.
const SchemaSQL = `
-- One row per invocation of the CLI
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	config_path TEXT NOT NULL,
	command TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	status TEXT NOT NULL CHECK(status IN ('running', 'succeeded', 'failed')),
	error TEXT
);

-- One row per (subject occurrence, stage)
CREATE TABLE IF NOT EXISTS outcomes (
	run_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	subject TEXT NOT NULL,
	stage TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('success', 'skipped_missing_input', 'failed')),
	output_path TEXT,
	missing_role TEXT,
	missing_path TEXT,
	detail TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
	PRIMARY KEY (run_id, position, stage)
);

-- Matrices excluded from the tensor
CREATE TABLE IF NOT EXISTS rejections (
	run_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	subject TEXT NOT NULL,
	path TEXT NOT NULL,
	kind TEXT NOT NULL,
	reason TEXT NOT NULL,
	rows INTEGER NOT NULL,
	cols INTEGER NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_outcomes_subject ON outcomes(subject);
`
