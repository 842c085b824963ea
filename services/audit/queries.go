package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kioskd/pkg/db"
)

// Row is one stored audit entry.
type Row struct {
	ID        int64     `db:"id"`
	MachineID string    `db:"machine_id"`
	Kind      string    `db:"kind"`
	Action    string    `db:"action"`
	Payload   []byte    `db:"payload"`
	At        time.Time `db:"at"`
}

// Recent returns the newest entries for one machine, newest first.
func Recent(ctx context.Context, pool *pgxpool.Pool, machineID string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Row
	err := db.Select(ctx, pool, &rows, `
SELECT id, machine_id, kind, action, payload, at
FROM action_audit
WHERE machine_id = $1
ORDER BY at DESC, id DESC
LIMIT $2
`, machineID, limit)
	return rows, err
}

// Purge deletes entries older than the retention cutoff and reports
// how many were removed.
func Purge(ctx context.Context, pool *pgxpool.Pool, olderThan time.Time) (int64, error) {
	tag, err := db.Exec(ctx, pool, `DELETE FROM action_audit WHERE at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
