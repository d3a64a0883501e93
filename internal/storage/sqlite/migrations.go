package sqlite

import (
	"database/sql"
	"fmt"
)

// schema sets up the database. It runs on startup to ensure tables exist.
// Timestamps are Unix nanoseconds.
const schema = `
CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    preferences TEXT,
    leader_token_hash TEXT NOT NULL DEFAULT '',
    leader_member_id TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    is_host INTEGER NOT NULL DEFAULT 0,
    done_swiping INTEGER NOT NULL DEFAULT 0,
    joined_at INTEGER NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (group_id, id),
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS swipes (
    group_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    restaurant_id TEXT NOT NULL,
    liked INTEGER NOT NULL,
    super_liked INTEGER NOT NULL,
    swiped_at INTEGER NOT NULL,
    PRIMARY KEY (group_id, member_id, restaurant_id),
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_group_members_group_id ON group_members(group_id);
CREATE INDEX IF NOT EXISTS idx_swipes_group_id ON swipes(group_id);
`

// addedColumns are columns introduced after the first schema. Databases
// created before them are upgraded in place.
var addedColumns = []struct{ table, column, definition string }{
	{"groups", "leader_member_id", "TEXT NOT NULL DEFAULT ''"},
}

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	for _, c := range addedColumns {
		exists, err := hasColumn(db, c.table, c.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.definition)); err != nil {
			return fmt.Errorf("failed to add %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	return n > 0, nil
}
