package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/store"
)

// Meta describes one export.
type Meta struct {
	ExportedAt      time.Time `json:"exportedAt"`
	ContractVersion string    `json:"contractVersion"`
	Digest          string    `json:"digest"`
}

// Export replaces the database contents with snap in one transaction.
// Readers of the file see either the previous export or this one.
func (d *DB) Export(ctx context.Context, snap store.Snapshot, exportedAt time.Time) (Meta, error) {
	digest, err := Digest(snap)
	if err != nil {
		return Meta{}, fmt.Errorf("export snapshot: %w", err)
	}
	meta := Meta{
		ExportedAt:      exportedAt.UTC(),
		ContractVersion: ir.ContractVersion,
		Digest:          digest,
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Meta{}, fmt.Errorf("export snapshot: begin: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	if err := writeAll(ctx, tx, snap, meta); err != nil {
		return Meta{}, fmt.Errorf("export snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Meta{}, fmt.Errorf("export snapshot: commit: %w", err)
	}
	return meta, nil
}

// WriteFile opens path, exports snap and closes it.
func WriteFile(ctx context.Context, path string, snap store.Snapshot, exportedAt time.Time) (Meta, error) {
	d, err := Open(path)
	if err != nil {
		return Meta{}, err
	}
	defer d.Close()
	return d.Export(ctx, snap, exportedAt)
}

func writeAll(ctx context.Context, tx *sql.Tx, snap store.Snapshot, meta Meta) error {
	// open_transactions references transactions, so it is cleared first.
	for _, table := range []string{"open_transactions", "transactions", "placements", "bindings", "seen_event_keys", "snapshot_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, b := range snap.Bindings {
		if err := insertBinding(ctx, tx, b); err != nil {
			return err
		}
	}

	for _, p := range snap.Placements {
		if err := insertPlacement(ctx, tx, p); err != nil {
			return err
		}
	}

	for _, t := range snap.Transactions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions
			(tx_id, object_type, object_id, status, checkout_at, expected_return_at, returned_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			t.ID,
			t.Object.Type,
			t.Object.ID,
			string(t.Status),
			formatTime(t.CheckoutAt),
			formatTimePtr(t.ExpectedReturnAt),
			formatTimePtr(t.ReturnedAt),
		)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}

	for _, e := range snap.OpenIndex {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO open_transactions (object_type, object_id, tx_id)
			VALUES (?, ?, ?)
		`, e.Object.Type, e.Object.ID, e.TxID)
		if err != nil {
			return fmt.Errorf("insert open transaction %s: %w", e.Object, err)
		}
	}

	for _, key := range snap.SeenKeys {
		if _, err := tx.ExecContext(ctx, `INSERT INTO seen_event_keys (event_key) VALUES (?)`, key); err != nil {
			return fmt.Errorf("insert seen key: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (id, exported_at, contract_version, digest)
		VALUES (1, ?, ?, ?)
	`, formatTime(meta.ExportedAt), meta.ContractVersion, meta.Digest)
	if err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}
	return nil
}

func insertBinding(ctx context.Context, tx *sql.Tx, b ir.Binding) error {
	var target string
	var objectType, objectID, zoneID sql.NullString
	switch t := b.Target.(type) {
	case ir.ObjectTarget:
		target = ir.TargetObject
		objectType = sql.NullString{String: t.Object.Type, Valid: true}
		objectID = sql.NullString{String: t.Object.ID, Valid: true}
	case ir.ZoneTarget:
		target = ir.TargetZone
		zoneID = sql.NullString{String: t.ZoneID, Valid: true}
	default:
		return fmt.Errorf("insert binding %s: unknown target %T", b.TagUID, b.Target)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO bindings (tag_uid, target, object_type, object_id, zone_id)
		VALUES (?, ?, ?, ?, ?)
	`, b.TagUID, target, objectType, objectID, zoneID)
	if err != nil {
		return fmt.Errorf("insert binding %s: %w", b.TagUID, err)
	}
	return nil
}

func insertPlacement(ctx context.Context, tx *sql.Tx, p ir.Placement) error {
	var zoneID, ctbPath sql.NullString
	switch loc := p.Location.(type) {
	case ir.ZoneLocation:
		zoneID = sql.NullString{String: loc.ZoneID, Valid: true}
	case ir.ContainerLocation:
		ctbPath = sql.NullString{String: loc.Path, Valid: true}
	default:
		return fmt.Errorf("insert placement %s: unknown location %T", p.Object, p.Location)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO placements (object_type, object_id, zone_id, ctb_path, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.Object.Type, p.Object.ID, zoneID, ctbPath, formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert placement %s: %w", p.Object, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
