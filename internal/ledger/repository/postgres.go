package repository

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-project/custodia/internal/ledger/model"
	"github.com/custodia-project/custodia/pkg/hashchain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore persists custody events to PostgreSQL. It implements
// EventStore.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection
// pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// shipmentLockKey maps a shipment id onto a stable advisory-lock key so that
// inserts for the same shipment serialise while different shipments proceed
// in parallel.
func shipmentLockKey(shipmentID string) int64 {
	sum := sha256.Sum256([]byte("custody_events:" + shipmentID))
	return int64(binary.BigEndian.Uint64(sum[:8])) //nolint:gosec
}

const eventColumns = `id, shipment_id, event_type, ts, actor, location, metadata,
	data_hash, previous_hash, transaction_hash, block_number, signature, verified`

// Insert implements EventStore.
// It acquires a per-shipment advisory lock, re-reads the chain tail, and
// inserts — all within one transaction, so two writers racing on the same
// shipment cannot both link to the same parent.
func (s *PostgresStore) Insert(ctx context.Context, e *model.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Transaction-scoped lock: released automatically on commit or rollback.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", shipmentLockKey(e.ShipmentID)); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	expected := hashchain.GenesisHash(e.ShipmentID)
	var tailHash string
	err = tx.QueryRow(ctx,
		"SELECT data_hash FROM custody_events WHERE shipment_id = $1 ORDER BY ts DESC LIMIT 1",
		e.ShipmentID,
	).Scan(&tailHash)
	switch {
	case err == nil:
		expected = tailHash
	case errors.Is(err, pgx.ErrNoRows):
		// First event for this shipment; genesis hash stands in for the tail.
	default:
		return fmt.Errorf("read chain tail: %w", err)
	}

	if e.PreviousHash != expected {
		return ErrChainConflict
	}

	actor, err := json.Marshal(e.Actor)
	if err != nil {
		return fmt.Errorf("marshal actor: %w", err)
	}
	location, err := json.Marshal(e.Location)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO custody_events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.ShipmentID, e.EventType, e.Timestamp, actor, location, metadata,
		e.DataHash, e.PreviousHash, e.TransactionHash, e.BlockNumber,
		e.Signature, e.Verified,
	); err != nil {
		return fmt.Errorf("insert custody event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit event tx: %w", err)
	}

	s.logger.Debug("custody event inserted",
		zap.String("shipment_id", e.ShipmentID),
		zap.String("event_type", string(e.EventType)),
		zap.String("data_hash", e.DataHash),
	)
	return nil
}

// GetByID implements EventStore.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM custody_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Latest implements EventStore.
func (s *PostgresStore) Latest(ctx context.Context, shipmentID string) (*model.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM custody_events
		 WHERE shipment_id = $1 ORDER BY ts DESC LIMIT 1`, shipmentID)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListByShipment implements EventStore.
func (s *PostgresStore) ListByShipment(ctx context.Context, shipmentID string) ([]*model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM custody_events
		 WHERE shipment_id = $1 ORDER BY ts ASC`, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("query shipment events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// Query implements EventStore.
func (s *PostgresStore) Query(ctx context.Context, f model.EventFilter, limit, offset int) ([]*model.Event, int, error) {
	where, args := buildFilter(f)

	var total int
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM custody_events"+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	pageArgs := append(args, limit, offset)
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT `+eventColumns+` FROM custody_events%s
		 ORDER BY ts DESC, id DESC LIMIT $%d OFFSET $%d`,
			where, len(args)+1, len(args)+2),
		pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// buildFilter translates an EventFilter into a WHERE clause and its
// positional arguments.
func buildFilter(f model.EventFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ShipmentID != "" {
		add("shipment_id = $%d", f.ShipmentID)
	}
	if len(f.EventTypes) > 0 {
		types := make([]string, len(f.EventTypes))
		for i, t := range f.EventTypes {
			types[i] = string(t)
		}
		add("event_type = ANY($%d)", types)
	}
	if f.ActorID != "" {
		add("actor->>'id' = $%d", f.ActorID)
	}
	if f.ActorKind != "" {
		add("actor->>'kind' = $%d", string(f.ActorKind))
	}
	if f.LocationKind != "" {
		add("location->>'kind' = $%d", string(f.LocationKind))
	}
	if f.From != nil {
		add("ts >= $%d", *f.From)
	}
	if f.To != nil {
		add("ts <= $%d", *f.To)
	}
	if f.Verified != nil {
		add("verified = $%d", *f.Verified)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Stats implements EventStore.
func (s *PostgresStore) Stats(ctx context.Context) (*model.ChainStats, error) {
	stats := &model.ChainStats{
		ByEventType: make(map[model.EventType]int),
	}

	var verified int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(DISTINCT shipment_id),
		        COUNT(*) FILTER (WHERE ts >= date_trunc('day', now() AT TIME ZONE 'utc')),
		        COUNT(*) FILTER (WHERE verified)
		 FROM custody_events`,
	).Scan(&stats.TotalEvents, &stats.TotalShipments, &stats.EventsToday, &verified); err != nil {
		return nil, fmt.Errorf("aggregate event stats: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT event_type, COUNT(*) FROM custody_events GROUP BY event_type")
	if err != nil {
		return nil, fmt.Errorf("event type breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t model.EventType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan event type row: %w", err)
		}
		stats.ByEventType[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.TotalEvents > 0 {
		stats.VerifiedRatio = float64(verified) / float64(stats.TotalEvents)
	}
	if stats.TotalShipments > 0 {
		stats.AvgEventsPerShipment = float64(stats.TotalEvents) / float64(stats.TotalShipments)
	}
	return stats, nil
}

// InsertVerification implements EventStore.
func (s *PostgresStore) InsertVerification(ctx context.Context, v *model.ChainVerification) error {
	broken, err := json.Marshal(v.BrokenLinks)
	if err != nil {
		return fmt.Errorf("marshal broken links: %w", err)
	}
	invalid, err := json.Marshal(v.InvalidHashes)
	if err != nil {
		return fmt.Errorf("marshal invalid hashes: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO chain_verifications
		 (id, shipment_id, is_valid, event_count, first_ts, last_ts,
		  broken_links, invalid_hashes, verified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.ID, v.ShipmentID, v.IsValid, v.EventCount, v.FirstTimestamp,
		v.LastTimestamp, broken, invalid, v.VerifiedAt,
	); err != nil {
		return fmt.Errorf("insert verification snapshot: %w", err)
	}
	return nil
}

// Delete implements EventStore. See the interface doc: the ledger never
// calls this in normal operation.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM custody_events WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	e := &model.Event{}
	var actor, location, metadata []byte
	if err := row.Scan(
		&e.ID, &e.ShipmentID, &e.EventType, &e.Timestamp,
		&actor, &location, &metadata,
		&e.DataHash, &e.PreviousHash, &e.TransactionHash,
		&e.BlockNumber, &e.Signature, &e.Verified,
	); err != nil {
		return nil, err
	}
	// pgx scans timestamptz in the process-local zone.
	e.Timestamp = e.Timestamp.UTC()
	if err := json.Unmarshal(actor, &e.Actor); err != nil {
		return nil, fmt.Errorf("unmarshal actor: %w", err)
	}
	if err := json.Unmarshal(location, &e.Location); err != nil {
		return nil, fmt.Errorf("unmarshal location: %w", err)
	}
	if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return e, nil
}

func collectEvents(rows pgx.Rows) ([]*model.Event, error) {
	var out []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
