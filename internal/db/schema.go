package db

// Schema is applied on every open. All *_at columns hold unix milliseconds.
const Schema = `
-- Accounts: one row per hosting customer login
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Split tokens: selector is the public lookup key, only the verifier hash is stored.
-- At most one live token per (owner, purpose); issuing a new one replaces the old.
CREATE TABLE IF NOT EXISTS split_tokens (
    selector TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    purpose TEXT NOT NULL,
    verifier_hash TEXT NOT NULL,
    expires_at INTEGER,              -- NULL never expires
    metadata TEXT NOT NULL DEFAULT '{}',  -- JSON object of strings
    created_at INTEGER NOT NULL,
    UNIQUE(owner_id, purpose)
);
CREATE INDEX IF NOT EXISTS idx_split_tokens_expires_at ON split_tokens(expires_at);

-- Webhosting plans: constraints and capabilities are JSON documents
CREATE TABLE IF NOT EXISTS plans (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    constraints TEXT NOT NULL,
    capabilities TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`
