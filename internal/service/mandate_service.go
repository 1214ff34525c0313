package service

import (
	"context"
	"fmt"

	"rentledger/internal/domain"
	"rentledger/internal/provider"
	"rentledger/internal/repository"
	"rentledger/pkg/logger"
)

type CreateMandateParams struct {
	LandlordID string
	TenantID   string
	Provider   string
	CustomerID string
	Scheme     string
}

type MandateService interface {
	Create(ctx context.Context, params CreateMandateParams) (*domain.Mandate, error)
	Get(mandateID, landlordID string) (*domain.Mandate, error)
	Cancel(ctx context.Context, mandateID, landlordID string) (*domain.Mandate, error)
}

type mandateService struct {
	mandates  repository.MandateRepository
	providers map[string]provider.Provider
}

func NewMandateService(mandates repository.MandateRepository, providers map[string]provider.Provider) MandateService {
	return &mandateService{mandates: mandates, providers: providers}
}

// Create sets up the authorization with the provider, then persists the
// local row keyed by the provider's reference. Later transitions arrive
// via webhooks.
func (s *mandateService) Create(ctx context.Context, params CreateMandateParams) (*domain.Mandate, error) {
	adapter, ok := s.providers[params.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrNotFound, params.Provider)
	}

	ref, err := adapter.CreateMandate(ctx, provider.MandateParams{
		CustomerID: params.CustomerID,
		Scheme:     params.Scheme,
	})
	if err != nil {
		return nil, err
	}

	status, ok := adapter.MapMandateStatus(ref.Status)
	if !ok {
		logger.GetLogger().WithFields(map[string]interface{}{
			"provider": params.Provider,
			"status":   ref.Status,
		}).Warn("Unrecognized provider mandate status")
		status = domain.MandatePendingSubmission
	}

	mandate := &domain.Mandate{
		LandlordID:  params.LandlordID,
		TenantID:    params.TenantID,
		Provider:    params.Provider,
		ProviderRef: ref.ID,
		Status:      status,
	}
	if err := s.mandates.Create(mandate); err != nil {
		return nil, fmt.Errorf("failed to create mandate: %w", err)
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"mandate_id":   mandate.ID,
		"provider_ref": mandate.ProviderRef,
	}).Info("Mandate created")

	return mandate, nil
}

func (s *mandateService) Get(mandateID, landlordID string) (*domain.Mandate, error) {
	return s.mandates.GetByID(mandateID, landlordID)
}

// Cancel revokes the authorization at the provider first; the local status
// only moves once the provider accepted the cancellation.
func (s *mandateService) Cancel(ctx context.Context, mandateID, landlordID string) (*domain.Mandate, error) {
	mandate, err := s.mandates.GetByID(mandateID, landlordID)
	if err != nil {
		return nil, err
	}
	if mandate.Status == domain.MandateCancelled {
		return nil, fmt.Errorf("%w: mandate is already cancelled", domain.ErrConflict)
	}

	adapter, ok := s.providers[mandate.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrNotFound, mandate.Provider)
	}

	if err := adapter.CancelMandate(ctx, mandate.ProviderRef); err != nil {
		return nil, err
	}

	if _, err := s.mandates.UpdateStatus(mandate.ID, mandate.Status, domain.MandateCancelled, nil); err != nil {
		return nil, err
	}
	mandate.Status = domain.MandateCancelled

	logger.GetLogger().WithField("mandate_id", mandateID).Info("Mandate cancelled")

	return mandate, nil
}
