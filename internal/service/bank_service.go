package service

import (
	"fmt"
	"path/filepath"

	"github.com/shopspring/decimal"

	"rentledger/internal/domain"
	"rentledger/internal/parser"
	"rentledger/internal/repository"
	"rentledger/pkg/logger"
)

const importBatchSize = 1000

type BankTransactionService interface {
	Create(transaction *domain.BankTransaction) error
	ImportCSV(landlordID, filePath string) (int, error)
	Get(transactionID, landlordID string) (*domain.BankTransaction, error)
	ListUnmatched(landlordID string) ([]domain.BankTransaction, error)
}

type bankTransactionService struct {
	transactions repository.BankTransactionRepository
}

func NewBankTransactionService(transactions repository.BankTransactionRepository) BankTransactionService {
	return &bankTransactionService{transactions: transactions}
}

func (s *bankTransactionService) Create(transaction *domain.BankTransaction) error {
	if err := s.validate(transaction); err != nil {
		return err
	}
	return s.transactions.Create(transaction)
}

// ImportCSV streams a bank statement file into the store and returns the
// number of imported rows.
func (s *bankTransactionService) ImportCSV(landlordID, filePath string) (int, error) {
	source := filepath.Base(filePath)
	p := parser.NewCSVBankTransactionParser(landlordID, source)

	imported := 0
	err := p.Parse(filePath, importBatchSize, func(batch []domain.BankTransaction) error {
		if err := s.transactions.BulkCreate(batch); err != nil {
			return err
		}
		imported += len(batch)
		return nil
	})
	if err != nil {
		return imported, fmt.Errorf("failed to import bank statement: %w", err)
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"file":     source,
		"imported": imported,
	}).Info("Bank statement imported")

	return imported, nil
}

func (s *bankTransactionService) Get(transactionID, landlordID string) (*domain.BankTransaction, error) {
	return s.transactions.GetByID(transactionID, landlordID)
}

func (s *bankTransactionService) ListUnmatched(landlordID string) ([]domain.BankTransaction, error) {
	return s.transactions.ListUnmatched(landlordID)
}

func (s *bankTransactionService) validate(transaction *domain.BankTransaction) error {
	if transaction.LandlordID == "" {
		return fmt.Errorf("landlord id is required")
	}
	if transaction.Amount.Equal(decimal.Zero) {
		return fmt.Errorf("amount must be non-zero")
	}
	if transaction.PostedAt.IsZero() {
		return fmt.Errorf("posted date is required")
	}
	return nil
}
