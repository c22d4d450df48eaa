package cli

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "1500", want: 1500},
		{in: "1_000_000", want: 1000000},
		{in: "25,000", want: 25000},
		{in: "10.5", want: 10.5},
		{in: "-3", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAmount(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseDate(t *testing.T) {
	def := time.Date(2025, 3, 9, 8, 30, 0, 0, time.UTC)

	got, err := parseDate("", def)
	require.NoError(t, err)
	assert.True(t, got.Equal(def))

	got, err = parseDate("2025-02-28", def)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)))

	_, err = parseDate("28/02/2025", def)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestParseTransactionType(t *testing.T) {
	for in, want := range map[string]models.TransactionType{
		"e": models.TransactionExpense, "Expense": models.TransactionExpense,
		"i": models.TransactionIncome, "INCOME": models.TransactionIncome,
	} {
		got, err := parseTransactionType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseTransactionType("transfer")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestMonthBounds(t *testing.T) {
	from, to := monthBounds(time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC))
	assert.True(t, from.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, to.Equal(time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)))
}

func TestHelpers(t *testing.T) {
	assert.Nil(t, splitTags("  "))
	assert.Equal(t, []string{"a", " b"}, splitTags("a, b"))
	assert.Equal(t, "Ann Lee", joinNonEmpty(" ", "Ann", "", "Lee"))
	assert.Equal(t, "", joinNonEmpty(" ", "", ""))
	assert.Equal(t, "-", sign(models.TransactionExpense))
	assert.Equal(t, "+", sign(models.TransactionIncome))
}
