package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_Valid(t *testing.T) {
	t.Parallel()

	testTable := []struct {
		name   string
		source Source
		valid  bool
	}{
		{
			"primary source",
			SourceBinanceP2P,
			true,
		},
		{
			"derived variant",
			SourceBinanceP2P.Derived(),
			true,
		},
		{
			"cross variant",
			SourceBinanceP2P.Cross(),
			true,
		},
		{
			"secondary primary source",
			SourceBCV,
			true,
		},
		{
			"unregistered source",
			Source("kraken_p2p"),
			false,
		},
		{
			"unregistered derived variant",
			Source("kraken_p2p_derived"),
			false,
		},
		{
			"empty source",
			Source(""),
			false,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.valid, testCase.source.Valid())
		})
	}
}

func TestSource_Variants(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Source("binance_p2p_derived"), SourceBinanceP2P.Derived())
	assert.Equal(t, Source("binance_p2p_cross"), SourceBinanceP2P.Cross())
}

func TestNewExchangeRate(t *testing.T) {
	t.Parallel()

	t.Run("valid record", func(t *testing.T) {
		t.Parallel()

		now := time.Now()

		r, err := NewExchangeRate(
			CurrencyUSDT,
			CurrencyVES,
			45.50,
			SourceBinanceP2P,
			now,
		)

		require.NoError(t, err)
		require.NotNil(t, r)

		assert.Equal(t, CurrencyUSDT, r.From)
		assert.Equal(t, CurrencyVES, r.To)
		assert.Equal(t, 45.50, r.Rate)
		assert.Equal(t, now.UTC(), r.CreatedAt)
	})

	t.Run("invalid records", func(t *testing.T) {
		t.Parallel()

		testTable := []struct {
			expectedErr error
			name        string
			from        Currency
			to          Currency
			source      Source
			rate        float64
		}{
			{
				ErrInvalidCurrency,
				"empty from currency",
				"",
				CurrencyVES,
				SourceBinanceP2P,
				45.50,
			},
			{
				ErrInvalidCurrency,
				"empty to currency",
				CurrencyUSDT,
				"",
				SourceBinanceP2P,
				45.50,
			},
			{
				ErrSamePair,
				"identical currencies",
				CurrencyVES,
				CurrencyVES,
				SourceBinanceP2P,
				45.50,
			},
			{
				ErrInvalidRate,
				"zero rate",
				CurrencyUSDT,
				CurrencyVES,
				SourceBinanceP2P,
				0,
			},
			{
				ErrInvalidRate,
				"negative rate",
				CurrencyUSDT,
				CurrencyVES,
				SourceBinanceP2P,
				-10,
			},
			{
				ErrUnknownSource,
				"source outside the closed set",
				CurrencyUSDT,
				CurrencyVES,
				Source("made_up"),
				45.50,
			},
		}

		for _, testCase := range testTable {
			t.Run(testCase.name, func(t *testing.T) {
				t.Parallel()

				r, err := NewExchangeRate(
					testCase.from,
					testCase.to,
					testCase.rate,
					testCase.source,
					time.Now(),
				)

				assert.Nil(t, r)
				assert.ErrorIs(t, err, testCase.expectedErr)
			})
		}
	})
}
