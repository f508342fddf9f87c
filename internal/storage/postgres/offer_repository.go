package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

type OfferRepository struct {
	pool *pgxpool.Pool
}

func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

func (r *OfferRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *OfferRepository) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	const query = `
SELECT id, title, price_minor, currency, bargain_enabled, bargain_rules, photo_url, created_at
FROM items
WHERE id = $1`

	var it domain.Item
	var rulesRaw []byte
	err := r.queryRow(ctx, query, itemID).
		Scan(&it.ID, &it.Title, &it.PriceMinor, &it.Currency, &it.BargainEnabled, &rulesRaw, &it.PhotoURL, &it.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Item{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Item{}, domain.ErrItemNotFound
		}
		return domain.Item{}, fmt.Errorf("get item: %w", err)
	}
	if len(rulesRaw) > 0 {
		if err := json.Unmarshal(rulesRaw, &it.Bargain); err != nil {
			return domain.Item{}, fmt.Errorf("decode bargain rules: %w", err)
		}
	}
	return it, nil
}

func (r *OfferRepository) CreateItem(ctx context.Context, item domain.Item) error {
	rulesRaw, err := json.Marshal(item.Bargain)
	if err != nil {
		return fmt.Errorf("encode bargain rules: %w", err)
	}

	const stmt = `
INSERT INTO items (id, title, price_minor, currency, bargain_enabled, bargain_rules, photo_url, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.exec(ctx, stmt,
		item.ID, item.Title, item.PriceMinor, item.Currency,
		item.BargainEnabled, rulesRaw, item.PhotoURL, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	return nil
}

func (r *OfferRepository) CreateOffer(ctx context.Context, offer domain.Offer) error {
	const stmt = `
INSERT INTO offers (id, item_id, variant_id, user_id, offer_amount_minor, status, counters_used, expires_at, last_counter_amount, created_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.exec(ctx, stmt,
		offer.ID, offer.ItemID, offer.VariantID, offer.UserID,
		offer.OfferAmountMinor, offer.Status, offer.CountersUsed,
		offer.ExpiresAt, offer.LastCounterAmount, offer.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create offer: %w", err)
	}
	return nil
}

func (r *OfferRepository) GetOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	const query = `
SELECT id, item_id, COALESCE(variant_id, ''), user_id, offer_amount_minor, status, counters_used, expires_at, last_counter_amount, created_at
FROM offers
WHERE id = $1`

	var o domain.Offer
	var status string
	err := r.queryRow(ctx, query, offerID).
		Scan(&o.ID, &o.ItemID, &o.VariantID, &o.UserID, &o.OfferAmountMinor, &status, &o.CountersUsed, &o.ExpiresAt, &o.LastCounterAmount, &o.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Offer{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Offer{}, domain.ErrOfferNotFound
		}
		return domain.Offer{}, fmt.Errorf("get offer: %w", err)
	}
	o.Status = domain.OfferStatus(status)
	return o, nil
}

// UpdateOfferDecision records a decision outcome guarded by the current
// status, so two concurrent decisions for the same offer apply exactly once.
func (r *OfferRepository) UpdateOfferDecision(ctx context.Context, offerID string, from, to domain.OfferStatus, countersUsed int, lastCounter *int64, expiresAt *time.Time) (bool, error) {
	const stmt = `
UPDATE offers
SET status = $3, counters_used = $4, last_counter_amount = $5, expires_at = $6
WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, offerID, from, to, countersUsed, lastCounter, expiresAt)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("update offer decision: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OfferRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OfferRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
