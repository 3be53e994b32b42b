package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
//
// The two partial unique indexes on settlements are load-bearing: they are
// the store-level guards against double-settlement of a stage and
// double-reversal of a settlement. Application code relies on the
// constraint, not on read-then-write checks.
const schema = `
CREATE TABLE IF NOT EXISTS transactions (
    transaction_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    user_email TEXT NOT NULL,
    amount INTEGER NOT NULL,
    transaction_type TEXT NOT NULL,
    source TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    stage_id TEXT,
    settlement_id TEXT,
    related_submission_id TEXT,
    related_comment_id TEXT,
    metadata TEXT
);

CREATE TABLE IF NOT EXISTS settlements (
    settlement_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    stage_id TEXT NOT NULL,
    settlement_type TEXT NOT NULL,
    settlement_time INTEGER NOT NULL,
    operator_email TEXT NOT NULL,
    total_reward_distributed INTEGER NOT NULL,
    participant_count INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    reversed_time INTEGER,
    reversed_by TEXT,
    reversed_reason TEXT,
    original_settlement_id TEXT
);

CREATE TABLE IF NOT EXISTS stages (
    stage_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    stage_name TEXT NOT NULL,
    stage_order INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    start_date INTEGER NOT NULL,
    end_date INTEGER NOT NULL,
    consensus_deadline INTEGER,
    report_reward_pool INTEGER NOT NULL DEFAULT 0,
    comment_reward_pool INTEGER NOT NULL DEFAULT 0,
    final_rankings TEXT,
    settled_time INTEGER,
    forced_by TEXT,
    forced_time INTEGER
);

CREATE TABLE IF NOT EXISTS ranking_proposals (
    proposal_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    stage_id TEXT NOT NULL,
    group_id TEXT NOT NULL,
    proposer_email TEXT NOT NULL,
    ranking TEXT NOT NULL,
    created_time INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS proposal_votes (
    vote_id TEXT PRIMARY KEY,
    proposal_id TEXT NOT NULL,
    voter_email TEXT NOT NULL,
    approve INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    UNIQUE (proposal_id, voter_email),
    FOREIGN KEY (proposal_id) REFERENCES ranking_proposals(proposal_id)
);

CREATE TABLE IF NOT EXISTS teacher_rankings (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    stage_id TEXT NOT NULL,
    teacher_email TEXT NOT NULL,
    group_id TEXT NOT NULL,
    rank INTEGER NOT NULL,
    created_time INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS groups (
    group_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    group_name TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL,
    user_email TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (group_id, user_email),
    FOREIGN KEY (group_id) REFERENCES groups(group_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS submissions (
    submission_id TEXT PRIMARY KEY,
    stage_id TEXT NOT NULL,
    group_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'submitted',
    participation TEXT NOT NULL,
    submitted_time INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stage_markers (
    stage_id TEXT NOT NULL,
    marker TEXT NOT NULL,
    created_time INTEGER NOT NULL,
    PRIMARY KEY (stage_id, marker)
);

CREATE INDEX IF NOT EXISTS idx_transactions_ledger
    ON transactions(project_id, user_email, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_settlement
    ON transactions(settlement_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_settlements_stage_once
    ON settlements(stage_id, settlement_type)
    WHERE status = 'active' AND settlement_type = 'stage';
CREATE UNIQUE INDEX IF NOT EXISTS idx_settlements_reversal_once
    ON settlements(original_settlement_id)
    WHERE original_settlement_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_settlements_project
    ON settlements(project_id, settlement_time);
CREATE INDEX IF NOT EXISTS idx_stages_status
    ON stages(status);
CREATE INDEX IF NOT EXISTS idx_proposals_stage
    ON ranking_proposals(stage_id);
CREATE INDEX IF NOT EXISTS idx_teacher_rankings_stage
    ON teacher_rankings(stage_id);
CREATE INDEX IF NOT EXISTS idx_submissions_stage
    ON submissions(stage_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
