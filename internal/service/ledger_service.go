package service

import (
	"rentledger/internal/domain"
	"rentledger/internal/repository"
)

type LedgerService interface {
	List(landlordID string) ([]domain.LedgerEntry, error)
}

type ledgerService struct {
	ledger repository.LedgerRepository
}

func NewLedgerService(ledger repository.LedgerRepository) LedgerService {
	return &ledgerService{ledger: ledger}
}

func (s *ledgerService) List(landlordID string) ([]domain.LedgerEntry, error) {
	return s.ledger.ListByLandlord(landlordID)
}
