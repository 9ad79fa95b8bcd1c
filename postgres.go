package lockbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TagPostgres is the backend family tag of the Postgres backend
const TagPostgres Tag = "postgres"

type (
	// PostgresConfig locates the Postgres database and table namespace of
	// the journal
	PostgresConfig struct {
		DSN    string
		Prefix string
	}

	// PostgresState is the backend-specific handle of the Postgres
	// backend, recoverable from a generic Handle via Downcast
	PostgresState struct {
		journal *pgJournal
	}

	pgJournal struct {
		pool            *pgxpool.Pool
		journalTable    string
		checkpointTable string
	}
)

// OpenPostgres creates a Handle whose journal and checkpoint live in two
// Postgres tables, created on open when missing. Each batch of events is
// appended in a single transaction
func OpenPostgres[S any](
	ctx context.Context, cfg Config, pcfg PostgresConfig, model Model[S],
) (*Handle, error) {
	prefix := pcfg.Prefix
	if prefix == "" {
		prefix = DefaultPostgresPrefix
	}

	pool, err := pgxpool.New(ctx, pcfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	j := &pgJournal{
		pool:            pool,
		journalTable:    prefix + "_journal",
		checkpointTable: prefix + "_checkpoint",
	}
	if err := j.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	eng, err := newEngine(ctx, cfg, model, j)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return NewHandle(TagPostgres, eng, &PostgresState{journal: j}), nil
}

// Pool exposes the underlying connection pool
func (p *PostgresState) Pool() *pgxpool.Pool {
	return p.journal.pool
}

func (j *pgJournal) ensureSchema(ctx context.Context) error {
	_, err := j.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq   BIGINT PRIMARY KEY,
			event JSONB NOT NULL
		)`, j.journalTable,
	))
	if err != nil {
		return err
	}

	_, err = j.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id   SMALLINT PRIMARY KEY CHECK (id = 0),
			data JSONB,
			seq  BIGINT NOT NULL
		)`, j.checkpointTable,
	))
	return err
}

func (j *pgJournal) Append(ctx context.Context, evs []*Event) error {
	batch := &pgx.Batch{}
	insert := fmt.Sprintf(
		"INSERT INTO %s (seq, event) VALUES ($1, $2)", j.journalTable,
	)
	for _, ev := range evs {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		batch.Queue(insert, ev.Sequence, data)
	}

	return pgx.BeginFunc(ctx, j.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (j *pgJournal) Load(ctx context.Context) (*JournalState, error) {
	js := &JournalState{}

	var data []byte
	row := j.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT data, seq FROM %s WHERE id = 0", j.checkpointTable,
	))
	err := row.Scan(&data, &js.NextSequence)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if len(data) > 0 {
		js.Checkpoint = json.RawMessage(data)
	}

	rows, err := j.pool.Query(ctx, fmt.Sprintf(
		"SELECT event FROM %s WHERE seq >= $1 ORDER BY seq", j.journalTable,
	), js.NextSequence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		ev := &Event{}
		if err := json.Unmarshal(raw, ev); err != nil {
			return nil, err
		}
		js.Events = append(js.Events, ev)
	}
	return js, rows.Err()
}

func (j *pgJournal) WriteCheckpoint(
	ctx context.Context, data []byte, nextSeq int64,
) error {
	return pgx.BeginFunc(ctx, j.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, data, seq) VALUES (0, $1, $2)
			ON CONFLICT (id) DO UPDATE
				SET data = EXCLUDED.data, seq = EXCLUDED.seq
				WHERE %s.seq < EXCLUDED.seq`,
			j.checkpointTable, j.checkpointTable,
		), data, nextSeq)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, fmt.Sprintf(
			"DELETE FROM %s WHERE seq < $1", j.journalTable,
		), nextSeq)
		return err
	})
}

func (j *pgJournal) Close() error {
	j.pool.Close()
	return nil
}
