package whistlelog

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Maintenance runs scheduled housekeeping on the whistle database: statistics
// refresh and WAL truncation. The whistles table only ever grows (retention is
// an external policy), so the query planner stats go stale without this.
type Maintenance struct {
	db *sql.DB
	c  *cron.Cron
}

// NewMaintenance creates a Maintenance runner with a standard cron schedule
// (e.g. "0 4 * * *").
func NewMaintenance(db *sql.DB, schedule string) (*Maintenance, error) {
	m := &Maintenance{db: db, c: cron.New()}
	if _, err := m.c.AddFunc(schedule, m.run); err != nil {
		return nil, fmt.Errorf("whistlelog maintenance: invalid schedule %q: %w", schedule, err)
	}
	return m, nil
}

// Start launches the cron scheduler.
func (m *Maintenance) Start() { m.c.Start() }

// Stop stops the scheduler. Already-running jobs complete.
func (m *Maintenance) Stop() { m.c.Stop() }

func (m *Maintenance) run() {
	for _, stmt := range []string{
		"ANALYZE",
		"PRAGMA optimize",
		"PRAGMA wal_checkpoint(TRUNCATE)",
	} {
		if _, err := m.db.Exec(stmt); err != nil {
			log.Printf("[whistlelog] warning: maintenance %q failed: %v", stmt, err)
		}
	}
	log.Printf("[whistlelog] maintenance completed")
}
