package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Service) ListCommissions(ctx context.Context, actor Actor) ([]domain.CommissionEntry, error) {
	aff, err := s.resolveAffiliate(ctx, actor, "")
	if err != nil {
		return nil, err
	}
	return s.commissions.ListByAffiliate(ctx, aff.AffiliateID)
}

func (s *Service) ExportCommissionStatement(ctx context.Context, actor Actor) (Statement, error) {
	if s.statements == nil {
		return Statement{}, fmt.Errorf("%w: statement renderer", domain.ErrDependencyUnavailable)
	}
	aff, err := s.resolveAffiliate(ctx, actor, "")
	if err != nil {
		return Statement{}, err
	}
	rows, err := s.commissions.ListByAffiliate(ctx, aff.AffiliateID)
	if err != nil {
		return Statement{}, domain.Persistence(err)
	}
	body, err := s.statements.RenderCommissionStatement(aff, rows)
	if err != nil {
		return Statement{}, fmt.Errorf("render commission statement: %w", err)
	}
	return Statement{
		FileName:    fmt.Sprintf("commissions-%s-%s.xlsx", aff.ReferralCode, s.nowFn().Format("20060102")),
		ContentType: xlsxContentType,
		Body:        body,
	}, nil
}

// UpdateCommissionStatus advances a commission one step along
// pending -> approved -> paid. Setting the current status again is a no-op.
func (s *Service) UpdateCommissionStatus(ctx context.Context, actor Actor, commissionID string, to domain.CommissionStatus) (domain.CommissionEntry, error) {
	if err := requireSubject(actor); err != nil {
		return domain.CommissionEntry{}, err
	}
	if !isAdmin(actor) {
		return domain.CommissionEntry{}, domain.ErrForbidden
	}
	commissionID = strings.TrimSpace(commissionID)
	if commissionID == "" {
		return domain.CommissionEntry{}, domain.ErrInvalidInput
	}
	current, err := s.commissions.GetByID(ctx, commissionID)
	if err != nil {
		return domain.CommissionEntry{}, err
	}
	if current.Status == to {
		return current, nil
	}
	if !domain.CanAdvanceCommission(current.Status, to) {
		return domain.CommissionEntry{}, fmt.Errorf("%w: commission %s cannot move from %s to %s", domain.ErrInvalidTransition, commissionID, current.Status, to)
	}
	now := s.nowFn()
	ok, err := s.commissions.UpdateStatus(ctx, commissionID, current.Status, to, now)
	if err != nil {
		return domain.CommissionEntry{}, domain.Persistence(err)
	}
	if !ok {
		return domain.CommissionEntry{}, fmt.Errorf("%w: commission %s changed concurrently", domain.ErrInvalidTransition, commissionID)
	}
	s.logger.InfoContext(ctx, "commission status changed",
		"module", "application.commissions",
		"layer", "application",
		"operation", "update_commission_status",
		"outcome", string(to),
		"commission_id", commissionID,
		"actor_id", actor.SubjectID,
	)
	current.Status = to
	current.UpdatedAt = now
	return current, nil
}
