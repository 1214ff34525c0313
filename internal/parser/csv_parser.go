package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rentledger/internal/domain"
	"rentledger/pkg/logger"
)

// BankTransactionParser parses imported bank statement files.
type BankTransactionParser interface {
	Parse(filePath string, batchSize int, callback func([]domain.BankTransaction) error) error
}

// CSVBankTransactionParser streams a CSV export in batches so large
// statements never load fully into memory.
type CSVBankTransactionParser struct {
	landlordID string
	source     string
}

func NewCSVBankTransactionParser(landlordID, source string) *CSVBankTransactionParser {
	return &CSVBankTransactionParser{landlordID: landlordID, source: source}
}

func (p *CSVBankTransactionParser) Parse(filePath string, batchSize int, callback func([]domain.BankTransaction) error) error {
	file, err := os.Open(filePath)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("file", filePath).Error("Failed to open file")
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to read CSV header")
		return fmt.Errorf("failed to read header: %w", err)
	}

	columnMap := mapColumns(header)
	if !validateColumns(columnMap) {
		return fmt.Errorf("invalid CSV format: missing required columns (amount, date, description)")
	}

	batch := make([]domain.BankTransaction, 0, batchSize)
	lineNumber := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.GetLogger().WithError(err).WithField("line", lineNumber).Warn("Failed to read CSV row, skipping")
			lineNumber++
			continue
		}

		lineNumber++

		transaction, err := p.parseRecord(record, columnMap, lineNumber)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("line", lineNumber).Warn("Failed to parse record, skipping")
			continue
		}

		batch = append(batch, *transaction)

		if len(batch) >= batchSize {
			if err := callback(batch); err != nil {
				return err
			}
			batch = make([]domain.BankTransaction, 0, batchSize)
		}
	}

	if len(batch) > 0 {
		if err := callback(batch); err != nil {
			return err
		}
	}

	return nil
}

func (p *CSVBankTransactionParser) parseRecord(record []string, columnMap map[string]int, lineNumber int) (*domain.BankTransaction, error) {
	if len(record) < len(columnMap) {
		return nil, fmt.Errorf("incomplete record at line %d", lineNumber)
	}

	amountStr := strings.TrimSpace(record[columnMap["amount"]])
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid amount '%s' at line %d: %w", amountStr, lineNumber, err)
	}

	dateStr := strings.TrimSpace(record[columnMap["date"]])
	postedAt, err := parseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid date '%s' at line %d: %w", dateStr, lineNumber, err)
	}

	description := strings.TrimSpace(record[columnMap["description"]])

	return &domain.BankTransaction{
		LandlordID:  p.landlordID,
		Amount:      amount,
		PostedAt:    postedAt,
		Description: description,
		Source:      p.source,
	}, nil
}

func mapColumns(header []string) map[string]int {
	columnMap := make(map[string]int)
	for i, col := range header {
		normalized := strings.ToLower(strings.TrimSpace(col))
		columnMap[normalized] = i
	}
	return columnMap
}

func validateColumns(columnMap map[string]int) bool {
	requiredColumns := []string{"amount", "date", "description"}
	for _, col := range requiredColumns {
		if _, exists := columnMap[col]; !exists {
			return false
		}
	}
	return true
}

func parseDate(dateStr string) (time.Time, error) {
	formats := []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"02/01/2006",
		"2006/01/02",
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}
