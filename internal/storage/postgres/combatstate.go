package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilwood/mud/internal/game/effect"
)

// ErrStateNotFound is returned when a combat-state lookup yields no row.
var ErrStateNotFound = errors.New("combat state not found")

// StateVersion is the current snapshot blob version. Version 0 blobs are
// legacy bare threat maps and are migrated transparently at load.
const StateVersion = 1

// CombatState is the persisted combat snapshot for one creature.
type CombatState struct {
	Version   int                  `json:"version"`
	Threat    map[string]float64   `json:"threat"`
	Effects   []effect.Saved       `json:"effects,omitempty"`
	Cooldowns map[string]time.Time `json:"cooldowns,omitempty"`
}

// CombatStateStore persists creature combat snapshots as JSONB blobs.
type CombatStateStore struct {
	db *pgxpool.Pool
}

// NewCombatStateStore creates a CombatStateStore backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewCombatStateStore(db *pgxpool.Pool) *CombatStateStore {
	return &CombatStateStore{db: db}
}

// Save upserts the snapshot for (shardID, entityID).
//
// Precondition: shardID and entityID must be non-empty.
// Postcondition: A later Load for the same keys returns an equivalent snapshot.
func (s *CombatStateStore) Save(ctx context.Context, shardID, entityID string, state CombatState) error {
	state.Version = StateVersion
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding combat state: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO combat_states (shard_id, entity_id, state, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (shard_id, entity_id)
		DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`,
		shardID, entityID, blob,
	)
	if err != nil {
		return fmt.Errorf("saving combat state: %w", err)
	}
	return nil
}

// Load returns the snapshot for (shardID, entityID).
//
// Postcondition: Returns the snapshot at StateVersion, migrating legacy
// blobs, or ErrStateNotFound.
func (s *CombatStateStore) Load(ctx context.Context, shardID, entityID string) (CombatState, error) {
	var blob []byte
	err := s.db.QueryRow(ctx, `
		SELECT state FROM combat_states WHERE shard_id = $1 AND entity_id = $2`,
		shardID, entityID,
	).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CombatState{}, ErrStateNotFound
		}
		return CombatState{}, fmt.Errorf("querying combat state: %w", err)
	}
	return decodeState(blob)
}

// LoadAll returns every snapshot for the shard, keyed by entity ID.
func (s *CombatStateStore) LoadAll(ctx context.Context, shardID string) (map[string]CombatState, error) {
	rows, err := s.db.Query(ctx, `
		SELECT entity_id, state FROM combat_states WHERE shard_id = $1`,
		shardID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing combat states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]CombatState)
	for rows.Next() {
		var (
			entityID string
			blob     []byte
		)
		if err := rows.Scan(&entityID, &blob); err != nil {
			return nil, fmt.Errorf("scanning combat state row: %w", err)
		}
		state, err := decodeState(blob)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", entityID, err)
		}
		out[entityID] = state
	}
	return out, rows.Err()
}

// Delete removes the snapshot for (shardID, entityID). Deleting a missing
// row is not an error; the creature may never have been persisted.
func (s *CombatStateStore) Delete(ctx context.Context, shardID, entityID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM combat_states WHERE shard_id = $1 AND entity_id = $2`,
		shardID, entityID,
	)
	if err != nil {
		return fmt.Errorf("deleting combat state: %w", err)
	}
	return nil
}

// decodeState parses a snapshot blob. Version 0 blobs predate the envelope
// and hold a bare attacker-to-threat map.
func decodeState(blob []byte) (CombatState, error) {
	var state CombatState
	if err := json.Unmarshal(blob, &state); err == nil && (state.Version >= 1 || state.Threat != nil) {
		state.Version = StateVersion
		return state, nil
	}

	var legacy map[string]float64
	if err := json.Unmarshal(blob, &legacy); err != nil {
		return CombatState{}, fmt.Errorf("decoding combat state: %w", err)
	}
	return CombatState{Version: StateVersion, Threat: legacy}, nil
}
