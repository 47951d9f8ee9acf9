package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ironrails/internal/game"
)

// notifyChannel carries the id of every committed game as a LISTEN/NOTIFY
// payload; watchers filter for their own game.
const notifyChannel = "ironrails_games"

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id         text PRIMARY KEY,
	phase      text NOT NULL,
	version    bigint NOT NULL DEFAULT 1,
	record     jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS games_phase_idx ON games (phase);
`

// Postgres stores one row per game: the full record as jsonb plus a version
// counter bumped on every commit. Updates run as serializable transactions;
// a serialization failure maps to game.ErrTransientConflict so the service
// layer can retry it.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{pool: pool, log: logger}, nil
}

func (p *Postgres) Create(ctx context.Context, r *game.Record) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	cmd, err := p.pool.Exec(ctx, `
		INSERT INTO games (id, phase, record)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, string(r.Phase), body)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrAllocationConflict
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*game.Record, error) {
	var body []byte
	err := p.pool.QueryRow(ctx, `SELECT record FROM games WHERE id = $1`, id).Scan(&body)
	if err == pgx.ErrNoRows {
		return nil, game.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(body)
}

func (p *Postgres) Update(ctx context.Context, id string, apply func(*game.Record) error) (*game.Record, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var body []byte
	var version int64
	err = tx.QueryRow(ctx, `
		SELECT record, version
		FROM games
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&body, &version)
	if err == pgx.ErrNoRows {
		return nil, game.ErrNotFound
	}
	if err != nil {
		return nil, translateTxErr(err)
	}

	rec, err := decodeRecord(body)
	if err != nil {
		return nil, err
	}
	if err := apply(rec); err != nil {
		return nil, err
	}

	next, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE games
		SET record = $1, phase = $2, version = $3, updated_at = now()
		WHERE id = $4
	`, next, string(rec.Phase), version+1, id); err != nil {
		return nil, translateTxErr(err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, id); err != nil {
		return nil, translateTxErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, translateTxErr(err)
	}
	return rec, nil
}

func (p *Postgres) ListLobby(ctx context.Context) ([]*game.Record, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT record
		FROM games
		WHERE phase = $1
		ORDER BY updated_at DESC
	`, string(game.PhaseLobby))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*game.Record
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(body)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Watch holds a dedicated connection on LISTEN and re-reads the record
// whenever its id is notified. The channel delivers the current record
// first and closes when ctx ends or the connection drops.
func (p *Postgres) Watch(ctx context.Context, id string) (<-chan *game.Record, error) {
	initial, err := p.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, err
	}

	ch := make(chan *game.Record, 1)
	ch <- initial
	go func() {
		defer close(ch)
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.log.Warn("watch listener stopped", "game_id", id, "err", err)
				}
				return
			}
			if n.Payload != id {
				continue
			}
			rec, err := p.Get(ctx, id)
			if err != nil {
				p.log.Warn("watch reread failed", "game_id", id, "err", err)
				continue
			}
			sendLatest(ch, rec)
		}
	}()
	return ch, nil
}

func decodeRecord(body []byte) (*game.Record, error) {
	var rec game.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode game record: %w", err)
	}
	return &rec, nil
}

// translateTxErr maps serialization failures onto the engine's transient
// conflict sentinel; everything else passes through unchanged.
func translateTxErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return fmt.Errorf("%w: %v", game.ErrTransientConflict, err)
	}
	return err
}
