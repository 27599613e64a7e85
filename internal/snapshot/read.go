package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/query"
	"github.com/roach88/aether/internal/store"
)

// ErrNoExport is returned by Meta when nothing has been exported yet.
var ErrNoExport = errors.New("snapshot: no export recorded")

// Meta returns the metadata of the last export.
func (d *DB) Meta(ctx context.Context) (Meta, error) {
	var m Meta
	var exportedAt string
	err := d.db.QueryRowContext(ctx, `
		SELECT exported_at, contract_version, digest FROM snapshot_meta WHERE id = 1
	`).Scan(&exportedAt, &m.ContractVersion, &m.Digest)
	if errors.Is(err, sql.ErrNoRows) {
		return Meta{}, ErrNoExport
	}
	if err != nil {
		return Meta{}, fmt.Errorf("read meta: %w", err)
	}
	if m.ExportedAt, err = parseTime(exportedAt); err != nil {
		return Meta{}, fmt.Errorf("read meta: %w", err)
	}
	return m, nil
}

// Binding looks up one exported binding.
func (d *DB) Binding(ctx context.Context, tagUID string) (query.BindingView, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT tag_uid, target, object_type, object_id, zone_id FROM bindings WHERE tag_uid = ?
	`, tagUID)
	b, err := scanBinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return query.BindingView{}, query.ErrNotFound
	}
	if err != nil {
		return query.BindingView{}, fmt.Errorf("read binding %s: %w", tagUID, err)
	}
	return query.NewBindingView(b), nil
}

// Placement looks up one exported placement.
func (d *DB) Placement(ctx context.Context, objectType, objectID string) (query.PlacementView, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT object_type, object_id, zone_id, ctb_path, updated_at
		FROM placements WHERE object_type = ? AND object_id = ?
	`, objectType, objectID)
	p, err := scanPlacement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return query.PlacementView{}, query.ErrNotFound
	}
	if err != nil {
		return query.PlacementView{}, fmt.Errorf("read placement %s:%s: %w", objectType, objectID, err)
	}
	return query.NewPlacementView(p), nil
}

// Transaction looks up one exported transaction.
func (d *DB) Transaction(ctx context.Context, txID string) (query.TransactionView, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT tx_id, object_type, object_id, status, checkout_at, expected_return_at, returned_at
		FROM transactions WHERE tx_id = ?
	`, txID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return query.TransactionView{}, query.ErrNotFound
	}
	if err != nil {
		return query.TransactionView{}, fmt.Errorf("read transaction %s: %w", txID, err)
	}
	return query.NewTransactionView(t), nil
}

// Load reads the whole export back into a store.Snapshot and checks it
// against the recorded digest.
func (d *DB) Load(ctx context.Context) (store.Snapshot, Meta, error) {
	meta, err := d.Meta(ctx)
	if err != nil {
		return store.Snapshot{}, Meta{}, err
	}

	snap := store.Snapshot{
		Bindings:     []ir.Binding{},
		Placements:   []ir.Placement{},
		Transactions: []ir.Transaction{},
		OpenIndex:    []store.OpenEntry{},
		SeenKeys:     []string{},
	}

	if err := d.each(ctx, `
		SELECT tag_uid, target, object_type, object_id, zone_id FROM bindings ORDER BY tag_uid
	`, func(rows *sql.Rows) error {
		b, err := scanBinding(rows)
		snap.Bindings = append(snap.Bindings, b)
		return err
	}); err != nil {
		return store.Snapshot{}, Meta{}, fmt.Errorf("load bindings: %w", err)
	}

	if err := d.each(ctx, `
		SELECT object_type, object_id, zone_id, ctb_path, updated_at
		FROM placements ORDER BY object_type, object_id
	`, func(rows *sql.Rows) error {
		p, err := scanPlacement(rows)
		snap.Placements = append(snap.Placements, p)
		return err
	}); err != nil {
		return store.Snapshot{}, Meta{}, fmt.Errorf("load placements: %w", err)
	}

	if err := d.each(ctx, `
		SELECT tx_id, object_type, object_id, status, checkout_at, expected_return_at, returned_at
		FROM transactions ORDER BY tx_id
	`, func(rows *sql.Rows) error {
		t, err := scanTransaction(rows)
		snap.Transactions = append(snap.Transactions, t)
		return err
	}); err != nil {
		return store.Snapshot{}, Meta{}, fmt.Errorf("load transactions: %w", err)
	}

	if err := d.each(ctx, `
		SELECT object_type, object_id, tx_id FROM open_transactions ORDER BY object_type, object_id
	`, func(rows *sql.Rows) error {
		var e store.OpenEntry
		err := rows.Scan(&e.Object.Type, &e.Object.ID, &e.TxID)
		snap.OpenIndex = append(snap.OpenIndex, e)
		return err
	}); err != nil {
		return store.Snapshot{}, Meta{}, fmt.Errorf("load open transactions: %w", err)
	}

	if err := d.each(ctx, `
		SELECT event_key FROM seen_event_keys ORDER BY event_key
	`, func(rows *sql.Rows) error {
		var key string
		err := rows.Scan(&key)
		snap.SeenKeys = append(snap.SeenKeys, key)
		return err
	}); err != nil {
		return store.Snapshot{}, Meta{}, fmt.Errorf("load seen keys: %w", err)
	}

	digest, err := Digest(snap)
	if err != nil {
		return store.Snapshot{}, Meta{}, fmt.Errorf("load snapshot: %w", err)
	}
	if digest != meta.Digest {
		return store.Snapshot{}, Meta{}, fmt.Errorf("load snapshot: digest mismatch: recorded %s, computed %s", meta.Digest, digest)
	}
	return snap, meta, nil
}

func (d *DB) each(ctx context.Context, q string, fn func(*sql.Rows) error) error {
	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBinding(s scanner) (ir.Binding, error) {
	var b ir.Binding
	var target string
	var objectType, objectID, zoneID sql.NullString
	if err := s.Scan(&b.TagUID, &target, &objectType, &objectID, &zoneID); err != nil {
		return ir.Binding{}, err
	}
	switch target {
	case ir.TargetObject:
		b.Target = ir.ObjectTarget{Object: ir.ObjectRef{Type: objectType.String, ID: objectID.String}}
	case ir.TargetZone:
		b.Target = ir.ZoneTarget{ZoneID: zoneID.String}
	default:
		return ir.Binding{}, fmt.Errorf("binding %s: unknown target %q", b.TagUID, target)
	}
	return b, nil
}

func scanPlacement(s scanner) (ir.Placement, error) {
	var p ir.Placement
	var zoneID, ctbPath sql.NullString
	var updatedAt string
	if err := s.Scan(&p.Object.Type, &p.Object.ID, &zoneID, &ctbPath, &updatedAt); err != nil {
		return ir.Placement{}, err
	}
	if zoneID.Valid {
		p.Location = ir.ZoneLocation{ZoneID: zoneID.String}
	} else {
		p.Location = ir.ContainerLocation{Path: ctbPath.String}
	}
	var err error
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ir.Placement{}, err
	}
	return p, nil
}

func scanTransaction(s scanner) (ir.Transaction, error) {
	var t ir.Transaction
	var status, checkoutAt string
	var expectedReturnAt, returnedAt sql.NullString
	if err := s.Scan(&t.ID, &t.Object.Type, &t.Object.ID, &status, &checkoutAt, &expectedReturnAt, &returnedAt); err != nil {
		return ir.Transaction{}, err
	}
	t.Status = ir.TxStatus(status)

	var err error
	if t.CheckoutAt, err = parseTime(checkoutAt); err != nil {
		return ir.Transaction{}, err
	}
	if t.ExpectedReturnAt, err = parseTimePtr(expectedReturnAt); err != nil {
		return ir.Transaction{}, err
	}
	if t.ReturnedAt, err = parseTimePtr(returnedAt); err != nil {
		return ir.Transaction{}, err
	}
	return t, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Query runs an arbitrary read against the export.
func (d *DB) Query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, q, args...)
}
