package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/openml-pimp/internal/openml"
	"github.com/banshee-data/openml-pimp/internal/timeutil"
)

// SetupStore keeps fetched setups across invocations so single-setup
// fallback fetches are paid once.
type SetupStore struct {
	db    *DB
	clock timeutil.Clock
}

// NewSetupStore creates a new SetupStore. A nil clock uses the real one.
func NewSetupStore(db *DB, clock timeutil.Clock) *SetupStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SetupStore{db: db, clock: clock}
}

// GetSetup returns the stored setup, or false when it was never stored.
func (s *SetupStore) GetSetup(setupID int) (openml.Setup, bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT setup_json FROM openml_setups WHERE setup_id = ?`, setupID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return openml.Setup{}, false, nil
	}
	if err != nil {
		return openml.Setup{}, false, fmt.Errorf("reading setup %d: %w", setupID, err)
	}

	var setup openml.Setup
	if err := json.Unmarshal([]byte(raw), &setup); err != nil {
		return openml.Setup{}, false, fmt.Errorf("decoding setup %d: %w", setupID, err)
	}
	return setup, true, nil
}

// PutSetup stores setup, replacing any earlier copy.
func (s *SetupStore) PutSetup(setup openml.Setup) error {
	raw, err := json.Marshal(setup)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO openml_setups (setup_id, flow_id, setup_json, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (setup_id) DO UPDATE SET
			flow_id = excluded.flow_id,
			setup_json = excluded.setup_json,
			fetched_at = excluded.fetched_at
	`
	err = retryOnBusy(func() error {
		_, err := s.db.Exec(query, setup.SetupID, setup.FlowID, string(raw),
			s.clock.Now().UTC().Format(time.RFC3339))
		return err
	})
	if err != nil {
		return fmt.Errorf("storing setup %d: %w", setup.SetupID, err)
	}
	return nil
}

// CountForFlow returns how many setups of flowID are stored.
func (s *SetupStore) CountForFlow(flowID int) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM openml_setups WHERE flow_id = ?`, flowID).Scan(&n)
	return n, err
}
