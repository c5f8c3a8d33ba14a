package grni

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"orvit/internal/core/apperror"
	appctx "orvit/internal/core/context"
	"orvit/internal/core/id"
	"orvit/internal/core/types"
)

const noteTimeLayout = "2006-01-02 15:04"

// AddNote appends a timestamped follow-up line to the accrual notes.
// An unknown accrual is reported through NoteResult, not as an error.
func (s *Service) AddNote(ctx context.Context, companyID int64, accrualID id.ID, note string) (NoteResult, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return NoteResult{}, apperror.NewValidation("note is empty")
	}

	now := s.clock.Now()
	actor := appctx.GetActor(ctx)
	line := fmt.Sprintf("[%s] %s: %s", now.Format(noteTimeLayout), authorLabel(actor), note)

	var found bool
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		found, err = s.repo.AppendNote(ctx, companyID, accrualID, line, now)
		if err != nil {
			return fmt.Errorf("append note: %w", err)
		}
		if !found {
			return nil
		}
		s.audit(ctx, &AuditEntry{
			ID:        id.New(),
			AccrualID: accrualID,
			CompanyID: companyID,
			Action:    ActionAddNote,
			Reason:    note,
			UserID:    appctx.GetUserID(ctx),
			CreatedAt: now,
		})
		return nil
	})
	if err != nil {
		return NoteResult{}, err
	}
	if !found {
		return NoteResult{Success: false, Message: "accrual not found"}, nil
	}
	return NoteResult{Success: true}, nil
}

func authorLabel(actor *appctx.Actor) string {
	switch {
	case actor != nil && actor.UserName != "":
		return actor.UserName
	case actor.IsSystem():
		return "sistema"
	}
	return "usuario #" + strconv.FormatInt(actor.UserID, 10)
}

// AssignOwner hands a pending accrual to another user.
func (s *Service) AssignOwner(ctx context.Context, companyID int64, accrualID id.ID, ownerID int64) (*Accrual, error) {
	if ownerID <= 0 {
		return nil, apperror.NewValidation("owner id must be positive").WithDetail("ownerId", ownerID)
	}

	now := s.clock.Now()
	userID := appctx.GetUserID(ctx)
	var out *Accrual

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, companyID, accrualID)
		if err != nil {
			return err
		}
		if err := a.CanTransition("assign_owner"); err != nil {
			return err
		}

		prev := a.OwnerID
		next := *a
		next.OwnerID = &ownerID
		next.UpdatedAt = now
		if err := s.repo.Update(ctx, &next, StatusPending); err != nil {
			return fmt.Errorf("update owner: %w", err)
		}

		s.audit(ctx, &AuditEntry{
			ID:          id.New(),
			AccrualID:   a.ID,
			CompanyID:   a.CompanyID,
			Action:      ActionAssignOwner,
			FromOwnerID: prev,
			ToOwnerID:   &ownerID,
			UserID:      userID,
			CreatedAt:   now,
		})
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdjustEstimate replaces the estimate of a pending accrual, e.g. after a
// price correction on the purchase order.
func (s *Service) AdjustEstimate(ctx context.Context, companyID int64, accrualID id.ID, amount types.Money, reason string) (*Accrual, error) {
	rounded := amount.Round(types.MoneyScale)
	if !rounded.IsPositive() {
		return nil, apperror.NewValidation("estimated amount must be positive").
			WithDetail("amount", amount.String())
	}
	amount = rounded

	now := s.clock.Now()
	userID := appctx.GetUserID(ctx)
	var out *Accrual

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, companyID, accrualID)
		if err != nil {
			return err
		}
		if err := a.CanTransition("adjust"); err != nil {
			return err
		}

		next := *a
		next.EstimatedAmount = amount
		next.UpdatedAt = now
		if err := s.repo.Update(ctx, &next, StatusPending); err != nil {
			return fmt.Errorf("update estimate: %w", err)
		}

		s.audit(ctx, &AuditEntry{
			ID:           id.New(),
			AccrualID:    a.ID,
			CompanyID:    a.CompanyID,
			Action:       ActionAdjust,
			AmountBefore: nullMoney(a.EstimatedAmount),
			AmountAfter:  nullMoney(amount),
			Reason:       reason,
			UserID:       userID,
			CreatedAt:    now,
		})
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
