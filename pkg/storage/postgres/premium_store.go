package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/notify"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/premium"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

// DefaultRecentLimit caps Recent when no positive limit is given.
const DefaultRecentLimit = 100

// Record is one stored premium.
type Record struct {
	ID         int64
	RecordedAt time.Time
	premium.Result
}

// PremiumStore persists premium results.
type PremiumStore struct {
	pool *Pool
}

// NewPremiumStore creates a new PremiumStore.
func NewPremiumStore(pool *Pool) *PremiumStore {
	return &PremiumStore{pool: pool}
}

// Compile-time interface check.
var _ notify.PremiumRecorder = (*PremiumStore)(nil)

// Insert adds one premium result.
func (s *PremiumStore) Insert(ctx context.Context, r premium.Result) error {
	domestic, err := json.Marshal(r.DomesticPrices)
	if err != nil {
		return fmt.Errorf("encode domestic prices: %w", err)
	}
	foreign, err := json.Marshal(r.ForeignPrices)
	if err != nil {
		return fmt.Errorf("encode foreign prices: %w", err)
	}

	query := `
		INSERT INTO premium_history (
			symbol, premium_rate, premium_amount,
			base_foreign_source, foreign_reference_price, exchange_rate, converted_foreign_price,
			highest_domestic_source, highest_domestic_price,
			lowest_domestic_source, lowest_domestic_price,
			domestic_prices, foreign_prices, computed_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9,
			$10, $11,
			$12, $13, $14
		)
	`
	_, err = s.pool.Exec(ctx, query,
		r.Symbol, r.PremiumRate, r.PremiumAmount,
		r.BaseForeignSource, r.ForeignReferencePrice, r.ExchangeRate, r.ConvertedForeignPrice,
		r.HighestDomesticSource, r.HighestDomesticPrice,
		r.LowestDomesticSource, r.LowestDomesticPrice,
		domestic, foreign, r.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("insert premium: %w", err)
	}
	return nil
}

// Recent returns the newest premiums of symbol, newest first.
func (s *PremiumStore) Recent(ctx context.Context, symbol string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `
		SELECT id, recorded_at,
			symbol, premium_rate, premium_amount,
			base_foreign_source, foreign_reference_price, exchange_rate, converted_foreign_price,
			highest_domestic_source, highest_domestic_price,
			lowest_domestic_source, lowest_domestic_price,
			domestic_prices, foreign_prices, computed_at
		FROM premium_history
		WHERE symbol = $1
		ORDER BY computed_at DESC, id DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, sources.NormalizeSymbol(symbol), limit)
	if err != nil {
		return nil, fmt.Errorf("query premiums: %w", err)
	}
	defer rows.Close()

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("scan premiums: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var (
		rec               Record
		domestic, foreign []byte
	)
	err := row.Scan(
		&rec.ID, &rec.RecordedAt,
		&rec.Symbol, &rec.PremiumRate, &rec.PremiumAmount,
		&rec.BaseForeignSource, &rec.ForeignReferencePrice, &rec.ExchangeRate, &rec.ConvertedForeignPrice,
		&rec.HighestDomesticSource, &rec.HighestDomesticPrice,
		&rec.LowestDomesticSource, &rec.LowestDomesticPrice,
		&domestic, &foreign, &rec.ComputedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(domestic, &rec.DomesticPrices); err != nil {
		return Record{}, fmt.Errorf("decode domestic prices: %w", err)
	}
	if err := json.Unmarshal(foreign, &rec.ForeignPrices); err != nil {
		return Record{}, fmt.Errorf("decode foreign prices: %w", err)
	}
	return rec, nil
}
