package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common fee categories used by the admin console. FeeType is free text, these are suggestions.
const (
	FeeTypeMonthly      = "Monthly Fee"
	FeeTypeRegistration = "Registration Fee"
	FeeTypeExam         = "Exam Fee"
	FeeTypeBeltTest     = "Belt Test Fee"
	FeeTypeUniform      = "Uniform Fee"
	FeeTypeTournament   = "Tournament Fee"
)

// PaymentMethod enumerates accepted payment channels.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "Cash"
	PaymentMethodUPI          PaymentMethod = "UPI"
	PaymentMethodBankTransfer PaymentMethod = "Bank Transfer"
	PaymentMethodCard         PaymentMethod = "Card"
	PaymentMethodCheque       PaymentMethod = "Cheque"
)

// IsValid checks if the method is supported.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodUPI, PaymentMethodBankTransfer, PaymentMethodCard, PaymentMethodCheque:
		return true
	}
	return false
}

// Ledger rule violations. Callers translate these into validation errors.
var (
	ErrNonPositiveAmount  = errors.New("amount must be greater than zero")
	ErrNegativeAdjustment = errors.New("late fee and discount must not be negative")
	ErrExceedsBalance     = errors.New("payment exceeds remaining balance")
	ErrDiscountTooLarge   = errors.New("discount exceeds the fee amount")
	ErrUnknownMethod      = errors.New("unsupported payment method")
	ErrInvalidScale       = errors.New("amounts support at most two decimal places")
)

// moneyScale matches the NUMERIC(12,2) ledger columns.
const moneyScale = 2

func hasMoneyScale(amounts ...decimal.Decimal) bool {
	for _, a := range amounts {
		if !a.Equal(a.Round(moneyScale)) {
			return false
		}
	}
	return true
}

// Adjustment is an optional surcharge or reduction with a free text reason.
type Adjustment struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason,omitempty"`
}

func (a *Adjustment) amount() decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	return a.Amount
}

// Payment is one immutable entry of a fee's payment history.
type Payment struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	PaidDate      time.Time       `json:"paidDate"`
	TransactionID string          `json:"transactionId,omitempty"`
	LateFee       *Adjustment     `json:"lateFee,omitempty"`
	Discount      *Adjustment     `json:"discount,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	RecordedBy    string          `json:"recordedBy,omitempty"`
	RecordedAt    time.Time       `json:"recordedAt"`
}

// PaymentHistory is stored as a JSONB array.
type PaymentHistory []Payment

// Value implements driver.Valuer.
func (p PaymentHistory) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *PaymentHistory) Scan(value interface{}) error {
	if value == nil {
		*p = PaymentHistory{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan payment history: unsupported type %T", value)
	}
	if len(raw) == 0 {
		*p = PaymentHistory{}
		return nil
	}
	return json.Unmarshal(raw, p)
}

// Sum adds up the amounts of every entry.
func (p PaymentHistory) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, payment := range p {
		total = total.Add(payment.Amount)
	}
	return total
}

// FeeRecord is one billable ledger line owned by a student.
type FeeRecord struct {
	ID               string          `json:"id"`
	StudentID        string          `json:"studentId,omitempty"`
	StudentName      string          `json:"studentName"`
	Course           string          `json:"course"`
	FeeType          string          `json:"feeType"`
	BaseAmount       decimal.Decimal `json:"amount"`
	LateFee          *Adjustment     `json:"lateFee,omitempty"`
	Discount         *Adjustment     `json:"discount,omitempty"`
	DueDate          time.Time       `json:"dueDate"`
	PaymentHistory   PaymentHistory  `json:"paymentHistory"`
	TotalPaidAmount  decimal.Decimal `json:"totalPaidAmount"`
	Status           FeeStatus       `json:"status"`
	Notes            string          `json:"notes,omitempty"`
	Version          int             `json:"version"`
	CreatedBy        string          `json:"createdBy,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
}

// NewFeeParams holds the inputs of a manually created fee.
type NewFeeParams struct {
	StudentID   string
	StudentName string
	Course      string
	FeeType     string
	Amount      decimal.Decimal
	DueDate     time.Time
	LateFee     *Adjustment
	Discount    *Adjustment
	Notes       string
	CreatedBy   string
}

// NewFeeRecord builds an unpaid fee record and derives its initial status.
func NewFeeRecord(params NewFeeParams, now time.Time, policy StatusPolicy) (*FeeRecord, error) {
	if !params.Amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if params.LateFee.amount().IsNegative() || params.Discount.amount().IsNegative() {
		return nil, ErrNegativeAdjustment
	}
	if !hasMoneyScale(params.Amount, params.LateFee.amount(), params.Discount.amount()) {
		return nil, ErrInvalidScale
	}
	fee := &FeeRecord{
		ID:              uuid.NewString(),
		StudentID:       params.StudentID,
		StudentName:     params.StudentName,
		Course:          params.Course,
		FeeType:         params.FeeType,
		BaseAmount:      params.Amount,
		LateFee:         normalizeAdjustment(params.LateFee),
		Discount:        normalizeAdjustment(params.Discount),
		DueDate:         params.DueDate,
		PaymentHistory:  PaymentHistory{},
		TotalPaidAmount: decimal.Zero,
		Notes:           params.Notes,
		CreatedBy:       params.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if fee.ComputeTotal().IsNegative() {
		return nil, ErrDiscountTooLarge
	}
	fee.Refresh(now, policy)
	return fee, nil
}

// ComputeTotal returns base amount plus late fee minus discount.
func (f *FeeRecord) ComputeTotal() decimal.Decimal {
	return f.BaseAmount.Add(f.LateFee.amount()).Sub(f.Discount.amount())
}

// ComputeRemaining returns what is still owed.
func (f *FeeRecord) ComputeRemaining() decimal.Decimal {
	return f.ComputeTotal().Sub(f.TotalPaidAmount)
}

// Refresh recomputes the derived fields and reports whether the status changed.
func (f *FeeRecord) Refresh(now time.Time, policy StatusPolicy) bool {
	f.TotalAmount = f.ComputeTotal()
	f.RemainingBalance = f.TotalAmount.Sub(f.TotalPaidAmount)
	status := policy.Derive(f.TotalAmount, f.TotalPaidAmount, f.DueDate, now)
	changed := status != f.Status
	f.Status = status
	return changed
}

// CheckInvariants verifies the ledger against its payment history.
func (f *FeeRecord) CheckInvariants() error {
	if sum := f.PaymentHistory.Sum(); !sum.Equal(f.TotalPaidAmount) {
		return fmt.Errorf("fee %s: total paid %s differs from payment history sum %s", f.ID, f.TotalPaidAmount, sum)
	}
	if f.TotalPaidAmount.GreaterThan(f.ComputeTotal()) {
		return fmt.Errorf("fee %s: total paid %s exceeds total amount %s", f.ID, f.TotalPaidAmount, f.ComputeTotal())
	}
	return nil
}

// PaymentInput describes a payment to apply against a fee.
type PaymentInput struct {
	Amount        decimal.Decimal
	Method        PaymentMethod
	PaidDate      time.Time
	TransactionID string
	LateFee       *Adjustment
	Discount      *Adjustment
	Notes         string
	RecordedBy    string
}

// ApplyPayment appends a payment entry. Late fee and discount carried by the payment are folded
// into the record's running totals before the balance check. On error the record is untouched.
func (f *FeeRecord) ApplyPayment(in PaymentInput, now time.Time, policy StatusPolicy) (*Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if !in.Method.IsValid() {
		return nil, ErrUnknownMethod
	}
	lateAdd := in.LateFee.amount()
	discountAdd := in.Discount.amount()
	if lateAdd.IsNegative() || discountAdd.IsNegative() {
		return nil, ErrNegativeAdjustment
	}
	if !hasMoneyScale(in.Amount, lateAdd, discountAdd) {
		return nil, ErrInvalidScale
	}

	lateTotal := f.LateFee.amount().Add(lateAdd)
	discountTotal := f.Discount.amount().Add(discountAdd)
	total := f.BaseAmount.Add(lateTotal).Sub(discountTotal)
	remaining := total.Sub(f.TotalPaidAmount)
	if in.Amount.GreaterThan(remaining) {
		return nil, fmt.Errorf("%w: %s requested, %s outstanding", ErrExceedsBalance, in.Amount.StringFixed(2), decimal.Max(remaining, decimal.Zero).StringFixed(2))
	}

	if lateAdd.IsPositive() {
		f.LateFee = mergeAdjustment(f.LateFee, lateTotal, in.LateFee.Reason)
	}
	if discountAdd.IsPositive() {
		f.Discount = mergeAdjustment(f.Discount, discountTotal, in.Discount.Reason)
	}

	paidDate := in.PaidDate
	if paidDate.IsZero() {
		paidDate = now
	}
	payment := Payment{
		ID:            uuid.NewString(),
		Amount:        in.Amount,
		PaymentMethod: in.Method,
		PaidDate:      paidDate,
		TransactionID: in.TransactionID,
		LateFee:       normalizeAdjustment(in.LateFee),
		Discount:      normalizeAdjustment(in.Discount),
		Notes:         in.Notes,
		RecordedBy:    in.RecordedBy,
		RecordedAt:    now,
	}
	f.PaymentHistory = append(f.PaymentHistory, payment)
	f.TotalPaidAmount = f.TotalPaidAmount.Add(in.Amount)
	f.UpdatedAt = now
	f.Refresh(now, policy)
	return &payment, nil
}

// Clone returns a deep copy so callers can retry against pristine state.
func (f *FeeRecord) Clone() *FeeRecord {
	clone := *f
	clone.LateFee = copyAdjustment(f.LateFee)
	clone.Discount = copyAdjustment(f.Discount)
	clone.PaymentHistory = make(PaymentHistory, len(f.PaymentHistory))
	copy(clone.PaymentHistory, f.PaymentHistory)
	return &clone
}

func mergeAdjustment(current *Adjustment, total decimal.Decimal, reason string) *Adjustment {
	merged := &Adjustment{Amount: total}
	if current != nil {
		merged.Reason = current.Reason
	}
	if merged.Reason == "" {
		merged.Reason = reason
	}
	return merged
}

func normalizeAdjustment(a *Adjustment) *Adjustment {
	if a == nil || !a.Amount.IsPositive() {
		return nil
	}
	return copyAdjustment(a)
}

func copyAdjustment(a *Adjustment) *Adjustment {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// FeeFilter captures list criteria for the monthly ledger view.
type FeeFilter struct {
	Month  int
	Year   int
	Status *FeeStatus
}

// PeriodBounds returns the half-open due-date range [start, end) of the filter month in UTC.
func (f FeeFilter) PeriodBounds() (time.Time, time.Time) {
	start := time.Date(f.Year, time.Month(f.Month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// FeeStatistics is the collection rollup for a reporting month.
type FeeStatistics struct {
	Month         int             `json:"month"`
	Year          int             `json:"year"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	PendingAmount decimal.Decimal `json:"pendingAmount"`
	PartialAmount decimal.Decimal `json:"partialAmount"`
	OverdueAmount decimal.Decimal `json:"overdueAmount"`
	TotalCount    int             `json:"totalCount"`
	PendingCount  int             `json:"pendingCount"`
	PartialCount  int             `json:"partialCount"`
	PaidCount     int             `json:"paidCount"`
	OverdueCount  int             `json:"overdueCount"`
}
