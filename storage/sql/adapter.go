package sql

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/remesas-ve/tasas/storage/types"
)

// DB is the minimal pgx surface required by the adapter,
// satisfied by both *pgx.Conn and *pgxpool.Pool
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Storage struct {
	db DB
}

func NewStorage(db DB) *Storage {
	return &Storage{
		db: db,
	}
}

func (s *Storage) SaveExchangeRate(
	ctx context.Context,
	rate *types.ExchangeRate,
) error {
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO exchange_rates (from_currency, to_currency, rate, source, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rate.From.String(),
		rate.To.String(),
		floatToNumeric(rate.Rate),
		rate.Source.String(),
		timeToTimestampz(rate.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("unable to save exchange rate: %w", err)
	}

	return nil
}

func (s *Storage) LatestRate(
	ctx context.Context,
	from types.Currency,
	to types.Currency,
) (*types.ExchangeRate, error) {
	row := s.db.QueryRow(
		ctx,
		`SELECT from_currency, to_currency, rate, source, created_at
		 FROM exchange_rates
		 WHERE from_currency = $1 AND to_currency = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		from.String(),
		to.String(),
	)

	rate, err := scanExchangeRate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // valid case
		}

		return nil, fmt.Errorf("unable to fetch latest rate: %w", err)
	}

	return rate, nil
}

func (s *Storage) ActiveRates(ctx context.Context) ([]*types.ExchangeRate, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT DISTINCT ON (from_currency, to_currency)
		        from_currency, to_currency, rate, source, created_at
		 FROM exchange_rates
		 ORDER BY from_currency, to_currency, created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch active rates: %w", err)
	}
	defer rows.Close()

	out := make([]*types.ExchangeRate, 0)

	for rows.Next() {
		rate, err := scanExchangeRate(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to parse active rate: %w", err)
		}

		out = append(out, rate)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to read active rates: %w", err)
	}

	return out, nil
}

func (s *Storage) ListSources(ctx context.Context) ([]types.Source, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT DISTINCT source FROM exchange_rates ORDER BY source`,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch sources: %w", err)
	}
	defer rows.Close()

	var out []types.Source

	for rows.Next() {
		var src string

		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("unable to parse source: %w", err)
		}

		out = append(out, types.Source(src))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to read sources: %w", err)
	}

	return out, nil
}

func (s *Storage) ListCurrencies(ctx context.Context) ([]types.Currency, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT DISTINCT code FROM (
		    SELECT from_currency AS code FROM exchange_rates
		    UNION
		    SELECT to_currency AS code FROM exchange_rates
		 ) AS codes
		 ORDER BY code`,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch currencies: %w", err)
	}
	defer rows.Close()

	var out []types.Currency

	for rows.Next() {
		var code string

		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("unable to parse currency: %w", err)
		}

		out = append(out, types.Currency(code))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to read currencies: %w", err)
	}

	return out, nil
}

// scanExchangeRate scans a single exchange rate row into the common Go type
func scanExchangeRate(row pgx.Row) (*types.ExchangeRate, error) {
	var (
		from, to, source string
		rate             pgtype.Numeric
		createdAt        pgtype.Timestamptz
	)

	if err := row.Scan(&from, &to, &rate, &source, &createdAt); err != nil {
		return nil, err
	}

	return &types.ExchangeRate{
		From:      types.Currency(from),
		To:        types.Currency(to),
		Rate:      numericToFloat(rate),
		Source:    types.Source(source),
		CreatedAt: timestampzToTime(createdAt),
	}, nil
}

// floatToNumeric converts the float value to postgres numeric
func floatToNumeric(value float64) pgtype.Numeric {
	// round to 6dp and store as integer with exponent -6
	i := int64(math.Round(value * 1e6))

	return pgtype.Numeric{
		Int:   big.NewInt(i),
		Exp:   -6,
		Valid: true,
	}
}

// numericToFloat converts the postgres value to float
func numericToFloat(value pgtype.Numeric) float64 {
	if !value.Valid || value.Int == nil {
		return 0
	}

	f, _ := new(big.Rat).SetInt(value.Int).Float64()

	if value.Exp > 0 {
		f *= math.Pow10(int(value.Exp))
	} else if value.Exp < 0 {
		f /= math.Pow10(int(-value.Exp))
	}

	return f
}

// timeToTimestampz converts the time value to postgres timestamp
func timeToTimestampz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  t.UTC(),
		Valid: true,
	}
}

// timestampzToTime converts the postgres timestamp value to time
func timestampzToTime(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}

	return ts.Time
}
