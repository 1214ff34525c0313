package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentledger/internal/domain"
)

func writeStatement(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statement.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVParser_Parse(t *testing.T) {
	path := writeStatement(t, `date,description,amount
2025-03-01,RENT INV-2025-000001,1200.00
2025-03-02,COFFEE,-3.50
02/03/2025,TRANSFER,500.00
`)

	p := NewCSVBankTransactionParser("landlord-1", "test-bank")

	var collected []domain.BankTransaction
	err := p.Parse(path, 100, func(batch []domain.BankTransaction) error {
		collected = append(collected, batch...)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, collected, 3)

	assert.Equal(t, "landlord-1", collected[0].LandlordID)
	assert.Equal(t, "test-bank", collected[0].Source)
	assert.Equal(t, "RENT INV-2025-000001", collected[0].Description)
	assert.True(t, collected[0].Amount.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, 2025, collected[0].PostedAt.Year())

	assert.True(t, collected[1].Amount.IsNegative(), "debits keep their sign")
	assert.Equal(t, "March", collected[2].PostedAt.Month().String(), "dd/mm/yyyy dates parse")
}

func TestCSVParser_Batching(t *testing.T) {
	path := writeStatement(t, `date,description,amount
2025-03-01,ONE,10.00
2025-03-02,TWO,20.00
2025-03-03,THREE,30.00
`)

	p := NewCSVBankTransactionParser("landlord-1", "test-bank")

	var batches int
	var total int
	err := p.Parse(path, 2, func(batch []domain.BankTransaction) error {
		batches++
		total += len(batch)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, batches)
	assert.Equal(t, 3, total)
}

func TestCSVParser_SkipsBadRows(t *testing.T) {
	path := writeStatement(t, `date,description,amount
2025-03-01,GOOD,100.00
not-a-date,BAD DATE,50.00
2025-03-02,BAD AMOUNT,lots
2025-03-03,ALSO GOOD,75.00
`)

	p := NewCSVBankTransactionParser("landlord-1", "test-bank")

	var collected []domain.BankTransaction
	err := p.Parse(path, 100, func(batch []domain.BankTransaction) error {
		collected = append(collected, batch...)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, collected, 2)
	assert.Equal(t, "GOOD", collected[0].Description)
	assert.Equal(t, "ALSO GOOD", collected[1].Description)
}

func TestCSVParser_MissingColumns(t *testing.T) {
	path := writeStatement(t, `date,memo,value
2025-03-01,RENT,1200.00
`)

	p := NewCSVBankTransactionParser("landlord-1", "test-bank")

	err := p.Parse(path, 100, func([]domain.BankTransaction) error { return nil })
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid CSV format")
}

func TestCSVParser_MissingFile(t *testing.T) {
	p := NewCSVBankTransactionParser("landlord-1", "test-bank")

	err := p.Parse(filepath.Join(t.TempDir(), "nope.csv"), 100, func([]domain.BankTransaction) error { return nil })
	assert.Error(t, err)
}
