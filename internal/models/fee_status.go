package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FeeStatus is the lifecycle stage of a fee record. It is always derivable from the
// record's amounts and due date; the stored copy only exists for query filtering.
type FeeStatus string

const (
	FeeStatusPending FeeStatus = "Pending"
	FeeStatusPartial FeeStatus = "Partial"
	FeeStatusPaid    FeeStatus = "Paid"
	FeeStatusOverdue FeeStatus = "Overdue"
)

// FeeStatuses lists every status in reporting order.
var FeeStatuses = []FeeStatus{FeeStatusPending, FeeStatusPartial, FeeStatusPaid, FeeStatusOverdue}

// IsValid checks if the status is a known FeeStatus.
func (s FeeStatus) IsValid() bool {
	switch s {
	case FeeStatusPending, FeeStatusPartial, FeeStatusPaid, FeeStatusOverdue:
		return true
	}
	return false
}

// ParseFeeStatus matches a status case-insensitively.
func ParseFeeStatus(raw string) (FeeStatus, bool) {
	for _, s := range FeeStatuses {
		if strings.EqualFold(string(s), strings.TrimSpace(raw)) {
			return s, true
		}
	}
	return "", false
}

// StatusPolicy controls how the past-due rule treats partially paid fees.
// The zero value keeps a partial payment as Partial after the due date.
type StatusPolicy struct {
	PartialOverdue bool
}

// Derive computes the status for the given totals. The due date is a calendar day:
// a fee is past due once the whole day has elapsed.
func (p StatusPolicy) Derive(totalAmount, totalPaid decimal.Decimal, dueDate, now time.Time) FeeStatus {
	if totalPaid.GreaterThanOrEqual(totalAmount) {
		return FeeStatusPaid
	}
	pastDue := now.After(DueCutoff(dueDate))
	if totalPaid.IsPositive() {
		if pastDue && p.PartialOverdue {
			return FeeStatusOverdue
		}
		return FeeStatusPartial
	}
	if pastDue {
		return FeeStatusOverdue
	}
	return FeeStatusPending
}

// DeriveStatus applies the default policy.
func DeriveStatus(totalAmount, totalPaid decimal.Decimal, dueDate, now time.Time) FeeStatus {
	return StatusPolicy{}.Derive(totalAmount, totalPaid, dueDate, now)
}

// DueCutoff returns the last instant on which a fee due on dueDate is still on time.
func DueCutoff(dueDate time.Time) time.Time {
	y, m, d := dueDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, dueDate.Location()).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
