package database

import (
	"context"
	"fmt"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
var migrations = []migration{
	{
		name:  "add captions.confidence",
		sql:   `ALTER TABLE captions ADD COLUMN IF NOT EXISTS confidence real NOT NULL DEFAULT 0.9`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'captions' AND column_name = 'confidence')`,
	},
	{
		name:  "add summaries.duration_minutes",
		sql:   `ALTER TABLE summaries ADD COLUMN IF NOT EXISTS duration_minutes int NOT NULL DEFAULT 0`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'summaries' AND column_name = 'duration_minutes')`,
	},
	{
		name:  "add captions room/ts index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_captions_room_ts ON captions (room_id, ts)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_captions_room_ts')`,
	},
	{
		name: "recreate caption insert notify trigger",
		sql: `DROP TRIGGER IF EXISTS trg_captions_notify ON captions;
CREATE TRIGGER trg_captions_notify
    AFTER INSERT ON captions
    FOR EACH ROW EXECUTE FUNCTION notify_caption_inserted()`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_captions_notify')`,
	},
}

// Migrate runs all pending schema migrations.
// For each migration, it first checks whether the change is already present.
// If not, it attempts to apply it. If the apply fails (e.g. insufficient
// privileges), the error is returned — the caller should treat this as fatal
// since the engine's queries depend on these objects existing.
func (db *DB) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		db.log.Debug().Msg("no pending migrations")
		return nil
	}

	for _, m := range pending {
		db.log.Info().Str("migration", m.name).Msg("applying migration")
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %q: %w", m.name, err)
		}
	}

	db.log.Info().Int("applied", len(pending)).Msg("migrations complete")
	return nil
}
