package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/tkd-admin-api/internal/models"
)

// AggregateFees rolls up the records due in the given month. Statuses are derived against now
// rather than read from the records, so the result never depends on a stale stored status.
// Outstanding amounts are remaining balances grouped by derived status.
func AggregateFees(records []models.FeeRecord, month, year int, now time.Time, policy models.StatusPolicy) models.FeeStatistics {
	stats := models.FeeStatistics{
		Month:         month,
		Year:          year,
		TotalAmount:   decimal.Zero,
		PaidAmount:    decimal.Zero,
		PendingAmount: decimal.Zero,
		PartialAmount: decimal.Zero,
		OverdueAmount: decimal.Zero,
	}
	start, end := models.FeeFilter{Month: month, Year: year}.PeriodBounds()

	for i := range records {
		record := &records[i]
		if record.DueDate.Before(start) || !record.DueDate.Before(end) {
			continue
		}
		total := record.ComputeTotal()
		paid := record.PaymentHistory.Sum()
		remaining := total.Sub(paid)

		stats.TotalCount++
		stats.TotalAmount = stats.TotalAmount.Add(total)
		stats.PaidAmount = stats.PaidAmount.Add(paid)

		switch policy.Derive(total, paid, record.DueDate, now) {
		case models.FeeStatusPaid:
			stats.PaidCount++
		case models.FeeStatusPartial:
			stats.PartialCount++
			stats.PartialAmount = stats.PartialAmount.Add(remaining)
		case models.FeeStatusOverdue:
			stats.OverdueCount++
			stats.OverdueAmount = stats.OverdueAmount.Add(remaining)
		default:
			stats.PendingCount++
			stats.PendingAmount = stats.PendingAmount.Add(remaining)
		}
	}
	return stats
}
