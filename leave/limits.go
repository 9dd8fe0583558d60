package leave

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// ATTACHMENTS
// =============================================================================

const DefaultMaxAttachmentBytes int64 = 5 << 20

var DefaultAttachmentTypes = []string{"application/pdf", "image/jpeg", "image/png"}

// requiresAttachment covers flagged leave types and sick leave longer than a day.
func requiresAttachment(lt *LeaveType, duration decimal.Decimal) bool {
	return lt.RequiresAttachment || (isSickLeave(lt) && duration.GreaterThan(decimal.NewFromInt(1)))
}

// checkAttachmentPresent runs at creation: the attachment must exist when
// required, and must resolve when given.
func (s *Service) checkAttachmentPresent(ctx context.Context, lt *LeaveType, attachmentID string, duration decimal.Decimal) error {
	if attachmentID == "" {
		if requiresAttachment(lt, duration) {
			return generic.NewValidationError("attachment_id", "%s requires a supporting document", lt.Name)
		}
		return nil
	}
	if s.Attachments == nil {
		return nil
	}
	if _, err := s.Attachments.GetAttachment(ctx, attachmentID); err != nil {
		return err
	}
	return nil
}

// validateAttachment checks size and type against the leave type's rules.
func (s *Service) validateAttachment(ctx context.Context, lt *LeaveType, req *LeaveRequest) error {
	if req.AttachmentID == "" {
		if requiresAttachment(lt, req.DurationDays) {
			return generic.NewValidationError("attachment_id", "%s requires a supporting document", lt.Name)
		}
		return nil
	}
	if s.Attachments == nil {
		return nil
	}

	att, err := s.Attachments.GetAttachment(ctx, req.AttachmentID)
	if err != nil {
		return err
	}

	maxBytes := lt.Attachments.MaxBytes
	if maxBytes <= 0 {
		maxBytes = s.maxAttachmentBytes
	}
	if att.Size > maxBytes {
		return generic.NewValidationError("attachment_id", "attachment is %d bytes, limit is %d", att.Size, maxBytes)
	}

	allowed := lt.Attachments.AllowedTypes
	if len(allowed) == 0 {
		allowed = s.attachmentTypes
	}
	mime := strings.ToLower(strings.TrimSpace(strings.Split(att.MimeType, ";")[0]))
	if !slices.Contains(allowed, mime) {
		return generic.NewValidationError("attachment_id", "attachment type %q is not one of %s", att.MimeType, strings.Join(allowed, ", "))
	}
	return nil
}

// =============================================================================
// CUMULATIVE LIMITS - Finalized days per calendar year and rolling window
// =============================================================================

// checkCumulativeLimits rejects req when finalizing it would exceed the
// leave type's yearly or rolling-window cap.
func (s *Service) checkCumulativeLimits(ctx context.Context, lt *LeaveType, req *LeaveRequest) error {
	lim := lt.Limits
	if !lim.MaxDaysPerYear.IsPositive() && !lim.MaxDaysPerWindow.IsPositive() {
		return nil
	}

	history, err := s.Store.ListRequests(ctx, RequestFilter{
		EmployeeID:  string(req.EmployeeID),
		LeaveTypeID: string(req.LeaveTypeID),
		Statuses:    []RequestStatus{StatusApproved},
	})
	if err != nil {
		return fmt.Errorf("list finalized requests: %w", err)
	}

	year := generic.PeriodConfig{Type: generic.PeriodCalendarYear}.PeriodFor(req.From)
	window := generic.PeriodConfig{Type: generic.PeriodRolling, Years: lim.WindowYears}.PeriodFor(req.To)

	yearTotal, windowTotal := req.DurationDays, req.DurationDays
	for i := range history {
		r := &history[i]
		if r.ID == req.ID || !r.IsFinalized() {
			continue
		}
		if year.Contains(r.From) {
			yearTotal = yearTotal.Add(r.DurationDays)
		}
		if window.Overlaps(r.Period()) {
			windowTotal = windowTotal.Add(r.DurationDays)
		}
	}

	var violations []string
	if lim.MaxDaysPerYear.IsPositive() && yearTotal.GreaterThan(lim.MaxDaysPerYear) {
		violations = append(violations, fmt.Sprintf("%s would total %s days in %d, limit is %s",
			lt.Name, yearTotal, req.From.Year(), lim.MaxDaysPerYear))
	}
	if lim.MaxDaysPerWindow.IsPositive() && windowTotal.GreaterThan(lim.MaxDaysPerWindow) {
		violations = append(violations, fmt.Sprintf("%s would total %s days in %s, limit is %s",
			lt.Name, windowTotal, window, lim.MaxDaysPerWindow))
	}
	if len(violations) > 0 {
		return &generic.EligibilityError{EmployeeID: req.EmployeeID, Violations: violations}
	}
	return nil
}
