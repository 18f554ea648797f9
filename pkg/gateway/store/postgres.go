package store

import (
	"context"
	"database/sql"
	"embed"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects, runs pending migrations, and returns the store.
func OpenPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database URL is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := migrate(databaseURL); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	logger.Info("transcript store ready")
	return &Postgres{pool: pool, logger: logger}, nil
}

// migrate uses the database/sql pgx driver because goose does not speak
// pgxpool directly.
func migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return errors.Wrap(err, "open migration connection")
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return errors.Wrap(err, "goose up")
	}
	return nil
}

func (p *Postgres) Insert(ctx context.Context, sessionID, transcript string, isLeia bool) (Transcription, error) {
	row := Transcription{
		ID:         uuid.New(),
		SessionID:  sessionID,
		Transcript: transcript,
		IsLeia:     isLeia,
	}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO transcriptions (id, session_id, transcript, is_leia)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		row.ID, row.SessionID, row.Transcript, row.IsLeia,
	).Scan(&row.CreatedAt)
	if err != nil {
		return Transcription{}, errors.Wrap(err, "insert transcription")
	}
	return row, nil
}

func (p *Postgres) ListBySession(ctx context.Context, sessionID string) ([]Transcription, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, session_id, transcript, is_leia, created_at
		 FROM transcriptions
		 WHERE session_id = $1
		 ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query transcriptions")
	}
	defer rows.Close()

	out := make([]Transcription, 0, 16)
	for rows.Next() {
		var t Transcription
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Transcript, &t.IsLeia, &t.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan transcription")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(err, "iterate transcriptions")
	}
	return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}
