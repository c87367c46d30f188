package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papertrade/market-sim/internal/model"
)

// PostgresStore implements Store using PostgreSQL. Monetary values are
// stored as NUMERIC for exact decimal precision; effect lists and holdings
// maps are stored as JSONB. Each save replaces the collection in one
// transaction, keeping snapshot semantics (full state, not a delta).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed snapshot store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) LoadMarket(ctx context.Context) ([]model.Instrument, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, name, sector,
		        price::TEXT, last_price::TEXT,
		        volatility, drift, effects
		 FROM instruments ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("load instruments: %w", err)
	}
	defer rows.Close()

	var instruments []model.Instrument
	for rows.Next() {
		var inst model.Instrument
		var priceS, lastPriceS string
		var effectsJSON []byte

		if err := rows.Scan(&inst.Symbol, &inst.Name, &inst.Sector,
			&priceS, &lastPriceS,
			&inst.Volatility, &inst.Drift, &effectsJSON); err != nil {
			return nil, err
		}
		inst.Price, _ = decimal.NewFromString(priceS)
		inst.LastPrice, _ = decimal.NewFromString(lastPriceS)
		if len(effectsJSON) > 0 {
			if err := json.Unmarshal(effectsJSON, &inst.Effects); err != nil {
				return nil, fmt.Errorf("decode effects for %s: %w", inst.Symbol, err)
			}
		}
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}

func (s *PostgresStore) SaveMarket(ctx context.Context, instruments []model.Instrument) error {
	return s.replace(ctx, "instruments", func(tx pgx.Tx) error {
		for _, inst := range instruments {
			effectsJSON, err := json.Marshal(inst.Effects)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO instruments (symbol, name, sector, price, last_price, volatility, drift, effects)
				 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8)`,
				inst.Symbol, inst.Name, inst.Sector,
				inst.Price.String(), inst.LastPrice.String(),
				inst.Volatility, inst.Drift, effectsJSON,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) LoadPortfolios(ctx context.Context) (map[string]*model.Portfolio, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT participant, holdings, realized_pl::TEXT FROM portfolios`)
	if err != nil {
		return nil, fmt.Errorf("load portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := make(map[string]*model.Portfolio)
	for rows.Next() {
		var participant, realizedS string
		var holdingsJSON []byte

		if err := rows.Scan(&participant, &holdingsJSON, &realizedS); err != nil {
			return nil, err
		}

		pf := model.NewPortfolio()
		pf.RealizedPL, _ = decimal.NewFromString(realizedS)
		if len(holdingsJSON) > 0 {
			if err := json.Unmarshal(holdingsJSON, &pf.Holdings); err != nil {
				return nil, fmt.Errorf("decode holdings for %s: %w", participant, err)
			}
		}
		portfolios[participant] = pf
	}
	return portfolios, rows.Err()
}

func (s *PostgresStore) SavePortfolios(ctx context.Context, portfolios map[string]*model.Portfolio) error {
	return s.replace(ctx, "portfolios", func(tx pgx.Tx) error {
		for participant, pf := range portfolios {
			holdingsJSON, err := json.Marshal(pf.Holdings)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO portfolios (participant, holdings, realized_pl)
				 VALUES ($1, $2, $3::NUMERIC)`,
				participant, holdingsJSON, pf.RealizedPL.String(),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) LoadSubscribers(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT participant, url FROM subscribers`)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := make(map[string]string)
	for rows.Next() {
		var participant, url string
		if err := rows.Scan(&participant, &url); err != nil {
			return nil, err
		}
		subscribers[participant] = url
	}
	return subscribers, rows.Err()
}

func (s *PostgresStore) SaveSubscribers(ctx context.Context, subscribers map[string]string) error {
	return s.replace(ctx, "subscribers", func(tx pgx.Tx) error {
		for participant, url := range subscribers {
			if _, err := tx.Exec(ctx,
				`INSERT INTO subscribers (participant, url) VALUES ($1, $2)`,
				participant, url,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// replace runs a delete-then-insert snapshot write in one transaction.
func (s *PostgresStore) replace(ctx context.Context, table string, insert func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if err := insert(tx); err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	return tx.Commit(ctx)
}

// Schema is the DDL required by PostgresStore, applied by the operator or a
// migration tool.
const Schema = `
CREATE TABLE IF NOT EXISTS instruments (
    symbol      TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    sector      TEXT NOT NULL,
    price       NUMERIC NOT NULL,
    last_price  NUMERIC NOT NULL,
    volatility  DOUBLE PRECISION NOT NULL,
    drift       DOUBLE PRECISION NOT NULL,
    effects     JSONB
);

CREATE TABLE IF NOT EXISTS portfolios (
    participant TEXT PRIMARY KEY,
    holdings    JSONB NOT NULL,
    realized_pl NUMERIC NOT NULL
);

CREATE TABLE IF NOT EXISTS subscribers (
    participant TEXT PRIMARY KEY,
    url         TEXT NOT NULL
);
`
