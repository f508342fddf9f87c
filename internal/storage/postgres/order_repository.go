package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const orderStmt = `
INSERT INTO orders (id, user_id, currency, amount_minor, status, offer_id, provider_charge_id, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)`

	const lineStmt = `
INSERT INTO order_lines (order_id, position, listing_id, variant_id, qty, price_minor)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`

	return withTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := r.exec(ctx, orderStmt,
			order.ID, order.UserID, order.Currency, order.AmountMinor,
			order.Status, order.OfferID, order.ProviderChargeID, order.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("order %s already exists: %w", order.ID, err)
			}
			if isInvalidUUID(err) {
				return domain.ErrInvalidID
			}
			return fmt.Errorf("create order: %w", err)
		}
		for i, l := range order.Lines {
			if _, err := r.exec(ctx, lineStmt, order.ID, i, l.ListingID, l.VariantID, l.Qty, l.PriceMinor); err != nil {
				return fmt.Errorf("create order line %d: %w", i, err)
			}
		}
		return nil
	})
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	const orderQuery = `
SELECT id, user_id, currency, amount_minor, status, COALESCE(offer_id, ''), COALESCE(provider_charge_id, ''), created_at
FROM orders
WHERE id = $1`

	const linesQuery = `
SELECT listing_id, COALESCE(variant_id, ''), qty, price_minor
FROM order_lines
WHERE order_id = $1
ORDER BY position`

	var o domain.Order
	var status string
	err := r.queryRow(ctx, orderQuery, orderID).
		Scan(&o.ID, &o.UserID, &o.Currency, &o.AmountMinor, &status, &o.OfferID, &o.ProviderChargeID, &o.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	o.Status = domain.OrderStatus(status)

	rows, err := r.query(ctx, linesQuery, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ListingID, &l.VariantID, &l.Qty, &l.PriceMinor); err != nil {
			return domain.Order{}, fmt.Errorf("scan order line: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("read order lines: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, changedAt time.Time) (bool, error) {
	const stmt = `UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, orderID, from, to, changedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("update order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) CreateStatusChange(ctx context.Context, change domain.OrderStatusChange) error {
	const stmt = `
INSERT INTO order_status_history (order_id, from_status, to_status, changed_at)
VALUES ($1, NULLIF($2, ''), $3, $4)`

	_, err := r.exec(ctx, stmt, change.OrderID, string(change.From), change.To, change.ChangedAt)
	if err != nil {
		return fmt.Errorf("create status change: %w", err)
	}
	return nil
}

func (r *OrderRepository) SetProviderChargeID(ctx context.Context, orderID, chargeID string) error {
	const stmt = `UPDATE orders SET provider_charge_id = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, orderID, chargeID)
	if err != nil {
		return fmt.Errorf("set provider charge id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OrderRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
