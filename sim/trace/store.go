package trace

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists simulation traces to SQLite. In WAL mode several partitions of
// one run can write to the same database file concurrently.
type Store struct {
	db *sql.DB
}

// RunCounts is the number of rows stored for one run.
type RunCounts struct {
	Partitions   int
	Negotiations int
	Memories     int
	Windows      int
}

// OpenStore opens (or creates) the SQLite database at path and initializes the schema.
func OpenStore(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate trace db: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS partitions (
		run_id     TEXT NOT NULL,
		grp        INTEGER NOT NULL,
		level      TEXT NOT NULL,
		saved_at   TEXT NOT NULL,
		PRIMARY KEY (run_id, grp)
	);

	CREATE TABLE IF NOT EXISTS negotiations (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id    TEXT NOT NULL,
		grp       INTEGER NOT NULL,
		clock     INTEGER NOT NULL,
		node      TEXT NOT NULL,
		protocol  TEXT NOT NULL,
		step      TEXT NOT NULL,
		peer      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_negotiations_run ON negotiations(run_id, clock);

	CREATE TABLE IF NOT EXISTS memories (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id    TEXT NOT NULL,
		grp       INTEGER NOT NULL,
		clock     INTEGER NOT NULL,
		node      TEXT NOT NULL,
		slot      INTEGER NOT NULL,
		from_state TEXT NOT NULL,
		to_state  TEXT NOT NULL,
		protocol  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_run ON memories(run_id, node, slot);

	CREATE TABLE IF NOT EXISTS windows (
		run_id    TEXT NOT NULL,
		grp       INTEGER NOT NULL,
		round     INTEGER NOT NULL,
		end_time  INTEGER NOT NULL,
		executed  INTEGER NOT NULL,
		outbound  INTEGER NOT NULL,
		inbound   INTEGER NOT NULL,
		PRIMARY KEY (run_id, grp, round)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveTrace writes every record of st under runID in one transaction.
// Saving the same partition of a run twice fails.
func (s *Store) SaveTrace(ctx context.Context, runID string, st *SimulationTrace) error {
	if st == nil {
		return nil
	}
	return retryOnContention(func() error {
		return s.saveTrace(ctx, runID, st)
	})
}

func (s *Store) saveTrace(ctx context.Context, runID string, st *SimulationTrace) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	grp := st.Config.Group
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO partitions (run_id, grp, level, saved_at) VALUES (?, ?, ?, ?)`,
		runID, grp, string(st.Config.Level), now,
	); err != nil {
		return fmt.Errorf("insert partition %d: %w", grp, err)
	}

	negStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO negotiations (run_id, grp, clock, node, protocol, step, peer) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer negStmt.Close()
	for _, n := range st.Negotiations {
		if _, err := negStmt.ExecContext(ctx, runID, grp, n.Clock, n.Node, n.Protocol, string(n.Step), n.Peer); err != nil {
			return fmt.Errorf("insert negotiation: %w", err)
		}
	}

	memStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO memories (run_id, grp, clock, node, slot, from_state, to_state, protocol) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer memStmt.Close()
	for _, m := range st.Memories {
		if _, err := memStmt.ExecContext(ctx, runID, grp, m.Clock, m.Node, m.Slot, m.From, m.To, m.Protocol); err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}
	}

	winStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO windows (run_id, grp, round, end_time, executed, outbound, inbound) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer winStmt.Close()
	for _, w := range st.Windows {
		if _, err := winStmt.ExecContext(ctx, runID, grp, int64(w.Round), w.End, w.Executed, w.Outbound, w.Inbound); err != nil {
			return fmt.Errorf("insert window: %w", err)
		}
	}

	return tx.Commit()
}

// Counts returns how many rows of each kind are stored for runID.
func (s *Store) Counts(ctx context.Context, runID string) (RunCounts, error) {
	var c RunCounts
	queries := []struct {
		table string
		dst   *int
	}{
		{"partitions", &c.Partitions},
		{"negotiations", &c.Negotiations},
		{"memories", &c.Memories},
		{"windows", &c.Windows},
	}
	for _, q := range queries {
		row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+q.table+` WHERE run_id = ?`, runID)
		if err := row.Scan(q.dst); err != nil {
			return RunCounts{}, fmt.Errorf("count %s: %w", q.table, err)
		}
	}
	return c, nil
}

// LoadNegotiations returns the negotiation records of runID ordered by clock,
// then by partition and insertion order.
func (s *Store) LoadNegotiations(ctx context.Context, runID string) ([]NegotiationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT clock, node, protocol, step, peer FROM negotiations WHERE run_id = ? ORDER BY clock, grp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NegotiationRecord
	for rows.Next() {
		var n NegotiationRecord
		var step string
		if err := rows.Scan(&n.Clock, &n.Node, &n.Protocol, &step, &n.Peer); err != nil {
			return nil, err
		}
		n.Step = NegotiationStep(step)
		out = append(out, n)
	}
	return out, rows.Err()
}
