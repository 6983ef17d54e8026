// Package sqlstore implements the storage interfaces on a SQL database
// through sqlx. Queries are written with ? placeholders and rebound for the
// connected driver, so the same store serves PostgreSQL and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/factory_os/internal/app/domain/device"
	"github.com/R3E-Network/factory_os/internal/app/storage"
)

const deviceColumns = `id, name, status, factory_id`

// Store implements storage.DeviceStore.
type Store struct {
	db *sqlx.DB
}

var _ storage.DeviceStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetDevice(ctx context.Context, id int64) (device.Device, error) {
	var d device.Device
	err := s.db.GetContext(ctx, &d, s.db.Rebind(`
		SELECT `+deviceColumns+`
		FROM devices
		WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return device.Device{}, storage.ErrNotFound
	}
	if err != nil {
		return device.Device{}, fmt.Errorf("get device %d: %w", id, err)
	}
	return d, nil
}

func (s *Store) SaveDevice(ctx context.Context, d device.Device) (device.Device, error) {
	if d.ID == 0 {
		// next id is computed in the same statement as the insert
		err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
			INSERT INTO devices (id, name, status, factory_id)
			SELECT COALESCE(MAX(id), 0) + 1, CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT)
			FROM devices
			RETURNING id
		`), d.Name, d.Status, d.FactoryID).Scan(&d.ID)
		if err != nil {
			return device.Device{}, fmt.Errorf("insert device: %w", err)
		}
		return d, nil
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO devices (id, name, status, factory_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, status = excluded.status, factory_id = excluded.factory_id
	`), d.ID, d.Name, d.Status, d.FactoryID)
	if err != nil {
		return device.Device{}, fmt.Errorf("save device %d: %w", d.ID, err)
	}
	return d, nil
}

func (s *Store) ListDevices(ctx context.Context, filter storage.DeviceFilter) ([]device.Device, error) {
	var (
		clauses []string
		args    []interface{}
	)
	if filter.FactoryID != "" {
		clauses = append(clauses, "factory_id = ?")
		args = append(args, filter.FactoryID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + deviceColumns + ` FROM devices`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id`

	result := []device.Device{}
	if err := s.db.SelectContext(ctx, &result, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return result, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
