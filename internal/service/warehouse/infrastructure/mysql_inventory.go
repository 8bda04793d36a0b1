// internal/service/warehouse/infrastructure/mysql_inventory.go
package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orchard/internal/service/warehouse/domain"
)

// MySQLInventoryLedger 用原生 SQL 实现库存台账。
// 这是预占热点路径，绕过 ORM 直接写条件 UPDATE：
// WHERE 同时带上 version 和数量约束，RowsAffected==0 即 CAS 落败。
type MySQLInventoryLedger struct {
	db *sql.DB
}

func NewMySQLInventoryLedger(db *sql.DB) *MySQLInventoryLedger {
	return &MySQLInventoryLedger{db: db}
}

func (m *MySQLInventoryLedger) Find(ctx context.Context, warehouseID, productID string) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := m.db.QueryRowContext(ctx, `
		SELECT warehouse_id, product_id, available_quantity, reserved_quantity, version, updated_at
		FROM inventory WHERE warehouse_id = ? AND product_id = ?`,
		warehouseID, productID,
	).Scan(&rec.WarehouseID, &rec.ProductID, &rec.Available, &rec.Reserved, &rec.Version, &rec.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInventoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &rec, nil
}

func (m *MySQLInventoryLedger) FindByProduct(ctx context.Context, productID string) ([]*domain.InventoryRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT warehouse_id, product_id, available_quantity, reserved_quantity, version, updated_at
		FROM inventory WHERE product_id = ? AND available_quantity > 0`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("query inventory by product: %w", err)
	}
	defer rows.Close()

	var records []*domain.InventoryRecord
	for rows.Next() {
		var rec domain.InventoryRecord
		if err := rows.Scan(&rec.WarehouseID, &rec.ProductID, &rec.Available, &rec.Reserved, &rec.Version, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (m *MySQLInventoryLedger) Reserve(ctx context.Context, warehouseID, productID string, qty, expectedVersion int) (bool, error) {
	return m.exec(ctx, `
		UPDATE inventory
		SET available_quantity = available_quantity - ?,
		    reserved_quantity  = reserved_quantity + ?,
		    version            = version + 1,
		    updated_at         = NOW()
		WHERE warehouse_id = ? AND product_id = ?
		  AND version = ? AND available_quantity >= ?`,
		qty, qty, warehouseID, productID, expectedVersion, qty,
	)
}

func (m *MySQLInventoryLedger) Confirm(ctx context.Context, warehouseID, productID string, qty, expectedVersion int) (bool, error) {
	return m.exec(ctx, `
		UPDATE inventory
		SET reserved_quantity = reserved_quantity - ?,
		    version           = version + 1,
		    updated_at        = NOW()
		WHERE warehouse_id = ? AND product_id = ?
		  AND version = ? AND reserved_quantity >= ?`,
		qty, warehouseID, productID, expectedVersion, qty,
	)
}

func (m *MySQLInventoryLedger) Release(ctx context.Context, warehouseID, productID string, qty, expectedVersion int) (bool, error) {
	return m.exec(ctx, `
		UPDATE inventory
		SET available_quantity = available_quantity + ?,
		    reserved_quantity  = reserved_quantity - ?,
		    version            = version + 1,
		    updated_at         = NOW()
		WHERE warehouse_id = ? AND product_id = ?
		  AND version = ? AND reserved_quantity >= ?`,
		qty, qty, warehouseID, productID, expectedVersion, qty,
	)
}

func (m *MySQLInventoryLedger) Upsert(ctx context.Context, rec *domain.InventoryRecord) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory
			(warehouse_id, product_id, available_quantity, reserved_quantity, version, updated_at)
		VALUES (?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			available_quantity = VALUES(available_quantity),
			reserved_quantity  = VALUES(reserved_quantity),
			version            = VALUES(version),
			updated_at         = NOW()`,
		rec.WarehouseID, rec.ProductID, rec.Available, rec.Reserved, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	return nil
}

func (m *MySQLInventoryLedger) exec(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update inventory: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
