package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/veritrail/sla-monitor/internal/model"
)

// OrderSource is the read-only query port over the order service's data.
// The monitor never writes through it.
type OrderSource interface {
	// ListOpenOrders returns all orders not in a terminal status
	ListOpenOrders(ctx context.Context) ([]*model.OrderSLAInfo, error)

	// GetOrder returns a single order projection, or nil if not found
	GetOrder(ctx context.Context, orderID string) (*model.OrderSLAInfo, error)
}

// SQLiteOrderSource implements OrderSource over the shared SQLite handle
type SQLiteOrderSource struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteOrderSource creates a new SQLite-backed order source
func NewSQLiteOrderSource(db *sql.DB, logger *zap.Logger) *SQLiteOrderSource {
	return &SQLiteOrderSource{
		logger: logger.Named("order-source"),
		db:     db,
	}
}

const orderColumns = "id, client_id, package_id, service_type, status, created_at, expected_completion_at"

// ListOpenOrders implements OrderSource.ListOpenOrders
func (s *SQLiteOrderSource) ListOpenOrders(ctx context.Context) ([]*model.OrderSLAInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status NOT IN (?, ?, ?)
		ORDER BY created_at ASC`,
		model.OrderStatusCompleted,
		model.OrderStatusCancelled,
		model.OrderStatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list open orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.OrderSLAInfo
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return orders, nil
}

// GetOrder implements OrderSource.GetOrder
func (s *SQLiteOrderSource) GetOrder(ctx context.Context, orderID string) (*model.OrderSLAInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = ?`, orderID)

	order, err := scanOrder(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

func scanOrder(scan func(...interface{}) error) (*model.OrderSLAInfo, error) {
	order := &model.OrderSLAInfo{}
	var expectedAt sql.NullTime

	err := scan(
		&order.ID,
		&order.ClientID,
		&order.PackageID,
		&order.ServiceType,
		&order.Status,
		&order.CreatedAt,
		&expectedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if expectedAt.Valid {
		order.ExpectedCompletionAt = &expectedAt.Time
	}

	return order, nil
}
