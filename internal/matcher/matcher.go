package matcher

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rentledger/internal/domain"
	"rentledger/internal/repository"
	"rentledger/pkg/logger"
)

// Scoring weights. A candidate earns points for amount exactness, date
// proximity and the invoice number appearing in the transaction
// description; the total is clamped to [0,100].
var (
	toleranceExact = decimal.Zero
	toleranceNear  = decimal.NewFromInt(1)
	toleranceWide  = decimal.NewFromInt(5)
)

const (
	amountExactScore = 60
	amountNearScore  = 50
	amountWideScore  = 30

	dateSameDayScore = 20
	dateOneDayScore  = 15
	dateWindowScore  = 10

	descriptionScore = 20

	maxScore = 100
)

// Matcher proposes invoice candidates for imported bank transactions.
type Matcher struct {
	transactions  repository.BankTransactionRepository
	invoices      repository.InvoiceRepository
	windowDays    int
	tolerance     decimal.Decimal
	autoThreshold int
}

func NewMatcher(
	transactions repository.BankTransactionRepository,
	invoices repository.InvoiceRepository,
	windowDays int,
	tolerance decimal.Decimal,
	autoThreshold int,
) *Matcher {
	return &Matcher{
		transactions:  transactions,
		invoices:      invoices,
		windowDays:    windowDays,
		tolerance:     tolerance,
		autoThreshold: autoThreshold,
	}
}

// SuggestMatches proposes open invoices for one credit movement. Debits are
// not matched; they return an empty list. Candidates come back sorted by
// descending confidence, ties broken by due date then invoice number so the
// ordering is deterministic.
func (m *Matcher) SuggestMatches(transactionID, landlordID string) ([]domain.MatchCandidate, error) {
	transaction, err := m.transactions.GetByID(transactionID, landlordID)
	if err != nil {
		return nil, err
	}

	if !transaction.Amount.IsPositive() {
		return []domain.MatchCandidate{}, nil
	}

	window := time.Duration(m.windowDays) * 24 * time.Hour
	from := transaction.PostedAt.Add(-window)
	to := transaction.PostedAt.Add(window)

	invoices, err := m.invoices.FindCandidates(landlordID, transaction.Amount, m.tolerance, from, to)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.MatchCandidate, 0, len(invoices))
	for _, inv := range invoices {
		candidates = append(candidates, domain.MatchCandidate{
			Invoice:    inv,
			Confidence: Score(inv, *transaction),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		if !candidates[i].Invoice.DueDate.Equal(candidates[j].Invoice.DueDate) {
			return candidates[i].Invoice.DueDate.Before(candidates[j].Invoice.DueDate)
		}
		return candidates[i].Invoice.Number < candidates[j].Invoice.Number
	})

	logger.GetLogger().WithFields(map[string]interface{}{
		"transaction_id": transactionID,
		"candidates":     len(candidates),
	}).Info("Match suggestions computed")

	return candidates, nil
}

// Confirm records a manual match between a transaction and an invoice.
func (m *Matcher) Confirm(transactionID, landlordID, invoiceID string) (*domain.Reconciliation, error) {
	transaction, err := m.transactions.GetByID(transactionID, landlordID)
	if err != nil {
		return nil, err
	}

	invoice, err := m.invoices.GetByID(invoiceID, landlordID)
	if err != nil {
		return nil, err
	}

	if err := m.ensureUnmatched(transactionID); err != nil {
		return nil, err
	}

	rec := &domain.Reconciliation{
		BankTransactionID: transaction.ID,
		InvoiceID:         &invoice.ID,
		MatchType:         domain.MatchManual,
		Confidence:        Score(*invoice, *transaction),
	}
	if err := m.transactions.CreateReconciliation(rec); err != nil {
		return nil, err
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"transaction_id": transactionID,
		"invoice_id":     invoiceID,
		"confidence":     rec.Confidence,
	}).Info("Manual match confirmed")

	return rec, nil
}

// AutoConfirm matches a transaction to its top suggestion without operator
// input, but only when the confidence clears the configured threshold.
// Anything below it stays unmatched for manual review.
func (m *Matcher) AutoConfirm(transactionID, landlordID string) (*domain.Reconciliation, error) {
	candidates, err := m.SuggestMatches(transactionID, landlordID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 || candidates[0].Confidence < m.autoThreshold {
		return nil, fmt.Errorf("%w: no candidate clears the auto-match threshold", domain.ErrNotFound)
	}

	if err := m.ensureUnmatched(transactionID); err != nil {
		return nil, err
	}

	top := candidates[0]
	rec := &domain.Reconciliation{
		BankTransactionID: transactionID,
		InvoiceID:         &top.Invoice.ID,
		MatchType:         domain.MatchAuto,
		Confidence:        top.Confidence,
	}
	if err := m.transactions.CreateReconciliation(rec); err != nil {
		return nil, err
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"transaction_id": transactionID,
		"invoice_id":     top.Invoice.ID,
		"confidence":     rec.Confidence,
	}).Info("Automatic match confirmed")

	return rec, nil
}

func (m *Matcher) ensureUnmatched(transactionID string) error {
	existing, err := m.transactions.ListReconciliations(transactionID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: transaction is already matched", domain.ErrConflict)
	}
	return nil
}

// Score computes the deterministic confidence for one invoice/transaction
// pair.
func Score(invoice domain.Invoice, transaction domain.BankTransaction) int {
	score := amountScore(invoice.GrandTotal, transaction.Amount) +
		dateScore(invoice.DueDate, transaction.PostedAt) +
		descriptionMatchScore(invoice.Number, transaction.Description)

	if score > maxScore {
		score = maxScore
	}
	if score < 0 {
		score = 0
	}
	return score
}

func amountScore(grandTotal, amount decimal.Decimal) int {
	diff := grandTotal.Sub(amount).Abs()
	switch {
	case diff.Equal(toleranceExact):
		return amountExactScore
	case diff.LessThanOrEqual(toleranceNear):
		return amountNearScore
	case diff.LessThanOrEqual(toleranceWide):
		return amountWideScore
	}
	return 0
}

func dateScore(dueDate, postedAt time.Time) int {
	days := daysBetween(dueDate, postedAt)
	switch {
	case days == 0:
		return dateSameDayScore
	case days <= 1:
		return dateOneDayScore
	case days <= 3:
		return dateWindowScore
	}
	return 0
}

func descriptionMatchScore(invoiceNumber, description string) int {
	if invoiceNumber == "" {
		return 0
	}
	if strings.Contains(strings.ToUpper(description), strings.ToUpper(invoiceNumber)) {
		return descriptionScore
	}
	return 0
}

// daysBetween counts whole calendar days between two dates, ignoring the
// time of day.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ta := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	tb := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)

	days := int(ta.Sub(tb).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
