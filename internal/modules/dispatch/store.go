// README: Settings snapshot store backed by PostgreSQL.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Settings is the operator-controlled state that survives restarts. The
// anti-spam ledger is not part of it.
type Settings struct {
	Mode      Mode          `json:"mode"`
	Config    ModeConfig    `json:"config"`
	Trips     []PlannedTrip `json:"trips"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type SettingsStore interface {
	// Load returns nil, nil when nothing was saved for driverID.
	Load(ctx context.Context, driverID string) (*Settings, error)
	Save(ctx context.Context, driverID string, s Settings) error
}

type PGSettingsStore struct {
	db *pgxpool.Pool
}

func NewPGSettingsStore(db *pgxpool.Pool) *PGSettingsStore {
	return &PGSettingsStore{db: db}
}

// Migrate creates the settings table if it does not exist.
func (s *PGSettingsStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS dispatch_settings (
            driver_id  TEXT PRIMARY KEY,
            mode       TEXT NOT NULL,
            config     JSONB NOT NULL,
            trips      JSONB NOT NULL DEFAULT '[]',
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`)
	if err != nil {
		return fmt.Errorf("create dispatch_settings: %w", err)
	}
	return nil
}

func (s *PGSettingsStore) Load(ctx context.Context, driverID string) (*Settings, error) {
	row := s.db.QueryRow(ctx, `
        SELECT mode, config, trips, updated_at
        FROM dispatch_settings
        WHERE driver_id = $1`, driverID,
	)

	var out Settings
	var mode string
	var cfg, trips []byte
	err := row.Scan(&mode, &cfg, &trips, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out.Mode = Mode(mode)
	if err := json.Unmarshal(cfg, &out.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := json.Unmarshal(trips, &out.Trips); err != nil {
		return nil, fmt.Errorf("decode trips: %w", err)
	}
	return &out, nil
}

func (s *PGSettingsStore) Save(ctx context.Context, driverID string, st Settings) error {
	cfg, err := json.Marshal(st.Config)
	if err != nil {
		return err
	}
	if st.Trips == nil {
		st.Trips = []PlannedTrip{}
	}
	trips, err := json.Marshal(st.Trips)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO dispatch_settings (driver_id, mode, config, trips, updated_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (driver_id) DO UPDATE
        SET mode = EXCLUDED.mode,
            config = EXCLUDED.config,
            trips = EXCLUDED.trips,
            updated_at = NOW()`,
		driverID, string(st.Mode), cfg, trips,
	)
	return err
}
