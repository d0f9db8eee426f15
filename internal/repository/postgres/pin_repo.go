// Package postgres stores dropped pins in a PostgreSQL table through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"kilroy/internal/domain/entities"
	"kilroy/internal/repository"
)

const schema = `
	CREATE TABLE IF NOT EXISTS dropped_pins (
		id            TEXT PRIMARY KEY,
		latitude      DOUBLE PRECISION NOT NULL,
		longitude     DOUBLE PRECISION NOT NULL,
		captured_at   TIMESTAMPTZ NOT NULL,
		image_ref     TEXT NOT NULL,
		comment       TEXT,
		place_name    TEXT,
		place_address TEXT,
		synced_at     TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS dropped_pins_captured_at_idx ON dropped_pins (captured_at DESC);
`

const selectColumns = `id, latitude, longitude, captured_at, image_ref, comment, place_name, place_address, synced_at`

// PinRepository implements repository.PinRepository on PostgreSQL.
type PinRepository struct {
	db *pgxpool.Pool
}

func NewPinRepository(db *pgxpool.Pool) *PinRepository {
	return &PinRepository{db: db}
}

// Connect opens a pool for dsn, limits it to maxConns and pings it.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the dropped_pins table if it does not exist.
func (r *PinRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("error creating dropped_pins table: %w", err)
	}
	return nil
}

func (r *PinRepository) List(ctx context.Context) ([]*entities.DroppedPin, error) {
	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM dropped_pins ORDER BY captured_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("error querying pins: %w", err)
	}
	defer rows.Close()

	var pins []*entities.DroppedPin
	for rows.Next() {
		pin, err := scanPin(rows)
		if err != nil {
			return nil, err
		}
		pins = append(pins, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pins: %w", err)
	}
	return pins, nil
}

func (r *PinRepository) Get(ctx context.Context, id string) (*entities.DroppedPin, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM dropped_pins WHERE id = $1`, id)
	pin, err := scanPin(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrPinNotFound
	}
	return pin, err
}

func (r *PinRepository) Save(ctx context.Context, pin *entities.DroppedPin) error {
	query := `
		INSERT INTO dropped_pins (
			id, latitude, longitude, captured_at, image_ref,
			comment, place_name, place_address, synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET
			latitude = $2,
			longitude = $3,
			captured_at = $4,
			image_ref = $5,
			comment = $6,
			place_name = $7,
			place_address = $8,
			synced_at = $9
	`
	_, err := r.db.Exec(ctx, query,
		pin.ID,
		pin.Coordinate.Latitude,
		pin.Coordinate.Longitude,
		pin.CapturedAt,
		pin.ImageRef,
		pin.Comment,
		pin.PlaceName,
		pin.PlaceAddress,
		pin.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving pin %s: %w", pin.ID, err)
	}
	return nil
}

// MarkSynced sets synced_at on an existing row only, so it cannot bring back
// a pin deleted while its sync was running.
func (r *PinRepository) MarkSynced(ctx context.Context, id string, at time.Time) (*entities.DroppedPin, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE dropped_pins SET synced_at = $2 WHERE id = $1 RETURNING `+selectColumns,
		id, at.UTC(),
	)
	pin, err := scanPin(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrPinNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error marking pin %s synced: %w", id, err)
	}
	return pin, nil
}

func (r *PinRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM dropped_pins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting pin %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrPinNotFound
	}
	return nil
}

func scanPin(row pgx.Row) (*entities.DroppedPin, error) {
	var (
		pin      entities.DroppedPin
		syncedAt *time.Time
	)
	err := row.Scan(
		&pin.ID,
		&pin.Coordinate.Latitude,
		&pin.Coordinate.Longitude,
		&pin.CapturedAt,
		&pin.ImageRef,
		&pin.Comment,
		&pin.PlaceName,
		&pin.PlaceAddress,
		&syncedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning pin: %w", err)
	}
	if syncedAt != nil {
		pin.MarkSynced(*syncedAt)
	}
	pin.CapturedAt = pin.CapturedAt.UTC()
	return &pin, nil
}
