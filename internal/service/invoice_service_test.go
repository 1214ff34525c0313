package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rentledger/internal/domain"
)

func TestVoidGuard(t *testing.T) {
	tests := []struct {
		name        string
		status      domain.InvoiceStatus
		allocations int
		wantErr     bool
	}{
		{"issued with no allocations", domain.InvoiceIssued, 0, false},
		{"late with no allocations", domain.InvoiceLate, 0, false},
		{"already void", domain.InvoiceVoid, 0, true},
		{"one allocation", domain.InvoiceIssued, 1, true},
		{"part paid", domain.InvoicePartPaid, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := voidGuard(&domain.Invoice{Status: tt.status}, tt.allocations)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrConflict)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
