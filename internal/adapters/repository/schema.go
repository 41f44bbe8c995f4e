package repository

// schema is applied on open; every statement is idempotent.
//
// Requirements, progress, contribution, and delta columns hold JSON objects
// mapping resource key -> amount. Tiers holds the ordered ladder as JSON.
const schema = `
CREATE TABLE IF NOT EXISTS missions (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    requirements TEXT NOT NULL,
    progress     TEXT NOT NULL,
    tiers        TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'active',
    ends_at      TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    completed_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS participants (
    mission_id     TEXT NOT NULL REFERENCES missions(id),
    user_id        TEXT NOT NULL,
    guild_id       TEXT NOT NULL DEFAULT '',
    contribution   TEXT NOT NULL,
    score          REAL NOT NULL DEFAULT 0,
    tier           TEXT NOT NULL DEFAULT '',
    "rank"         INTEGER NOT NULL DEFAULT 0,
    reward_claimed INTEGER NOT NULL DEFAULT 0,
    joined_at      TEXT NOT NULL,
    updated_at     TEXT NOT NULL,
    PRIMARY KEY (mission_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_participants_mission
    ON participants(mission_id, score DESC, joined_at ASC);

CREATE TABLE IF NOT EXISTS wallets (
    user_id  TEXT NOT NULL,
    resource TEXT NOT NULL,
    balance  INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, resource)
);

CREATE TABLE IF NOT EXISTS activity_log (
    id         TEXT PRIMARY KEY,
    mission_id TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    delta      TEXT NOT NULL,
    score      REAL NOT NULL,
    tier       TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_mission
    ON activity_log(mission_id, created_at DESC);
`
