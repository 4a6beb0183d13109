package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/tkd-admin-api/internal/models"
)

const feeColumns = `id, student_id, student_name, course, fee_type, base_amount, late_fee_amount, late_fee_reason,
        discount_amount, discount_reason, due_date, payment_history, total_paid_amount, status, notes, version,
        created_by, created_at, updated_at`

// feeRow mirrors the fees table. Optional adjustments are split into nullable columns.
type feeRow struct {
	ID              string                `db:"id"`
	StudentID       sql.NullString        `db:"student_id"`
	StudentName     string                `db:"student_name"`
	Course          string                `db:"course"`
	FeeType         string                `db:"fee_type"`
	BaseAmount      decimal.Decimal       `db:"base_amount"`
	LateFeeAmount   decimal.NullDecimal   `db:"late_fee_amount"`
	LateFeeReason   sql.NullString        `db:"late_fee_reason"`
	DiscountAmount  decimal.NullDecimal   `db:"discount_amount"`
	DiscountReason  sql.NullString        `db:"discount_reason"`
	DueDate         time.Time             `db:"due_date"`
	PaymentHistory  models.PaymentHistory `db:"payment_history"`
	TotalPaidAmount decimal.Decimal       `db:"total_paid_amount"`
	Status          string                `db:"status"`
	Notes           sql.NullString        `db:"notes"`
	Version         int                   `db:"version"`
	CreatedBy       sql.NullString        `db:"created_by"`
	CreatedAt       time.Time             `db:"created_at"`
	UpdatedAt       time.Time             `db:"updated_at"`
}

func feeRowFromModel(fee *models.FeeRecord) feeRow {
	row := feeRow{
		ID:              fee.ID,
		StudentID:       nullString(fee.StudentID),
		StudentName:     fee.StudentName,
		Course:          fee.Course,
		FeeType:         fee.FeeType,
		BaseAmount:      fee.BaseAmount,
		DueDate:         fee.DueDate,
		PaymentHistory:  fee.PaymentHistory,
		TotalPaidAmount: fee.TotalPaidAmount,
		Status:          string(fee.Status),
		Notes:           nullString(fee.Notes),
		Version:         fee.Version,
		CreatedBy:       nullString(fee.CreatedBy),
		CreatedAt:       fee.CreatedAt,
		UpdatedAt:       fee.UpdatedAt,
	}
	if fee.LateFee != nil {
		row.LateFeeAmount = decimal.NewNullDecimal(fee.LateFee.Amount)
		row.LateFeeReason = nullString(fee.LateFee.Reason)
	}
	if fee.Discount != nil {
		row.DiscountAmount = decimal.NewNullDecimal(fee.Discount.Amount)
		row.DiscountReason = nullString(fee.Discount.Reason)
	}
	return row
}

func (r feeRow) toModel() models.FeeRecord {
	fee := models.FeeRecord{
		ID:              r.ID,
		StudentID:       r.StudentID.String,
		StudentName:     r.StudentName,
		Course:          r.Course,
		FeeType:         r.FeeType,
		BaseAmount:      r.BaseAmount,
		DueDate:         r.DueDate,
		PaymentHistory:  r.PaymentHistory,
		TotalPaidAmount: r.TotalPaidAmount,
		Status:          models.FeeStatus(r.Status),
		Notes:           r.Notes.String,
		Version:         r.Version,
		CreatedBy:       r.CreatedBy.String,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if fee.PaymentHistory == nil {
		fee.PaymentHistory = models.PaymentHistory{}
	}
	if r.LateFeeAmount.Valid {
		fee.LateFee = &models.Adjustment{Amount: r.LateFeeAmount.Decimal, Reason: r.LateFeeReason.String}
	}
	if r.DiscountAmount.Valid {
		fee.Discount = &models.Adjustment{Amount: r.DiscountAmount.Decimal, Reason: r.DiscountReason.String}
	}
	fee.TotalAmount = fee.ComputeTotal()
	fee.RemainingBalance = fee.ComputeRemaining()
	return fee
}

// FeeRepository persists fee ledger lines.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs a FeeRepository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// Create inserts a new fee record at version 1.
func (r *FeeRepository) Create(ctx context.Context, fee *models.FeeRecord) error {
	now := time.Now().UTC()
	if fee.CreatedAt.IsZero() {
		fee.CreatedAt = now
	}
	if fee.UpdatedAt.IsZero() {
		fee.UpdatedAt = now
	}
	fee.Version = 1
	const query = `INSERT INTO fees (id, student_id, student_name, course, fee_type, base_amount, late_fee_amount, late_fee_reason,
        discount_amount, discount_reason, due_date, payment_history, total_paid_amount, status, notes, version, created_by, created_at, updated_at)
        VALUES (:id, :student_id, :student_name, :course, :fee_type, :base_amount, :late_fee_amount, :late_fee_reason,
        :discount_amount, :discount_reason, :due_date, :payment_history, :total_paid_amount, :status, :notes, :version, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, feeRowFromModel(fee)); err != nil {
		return fmt.Errorf("create fee: %w", err)
	}
	return nil
}

// FindByID loads a single fee. Returns sql.ErrNoRows when absent.
func (r *FeeRepository) FindByID(ctx context.Context, id string) (*models.FeeRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM fees WHERE id = $1`, feeColumns)
	var row feeRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find fee: %w", err)
	}
	fee := row.toModel()
	return &fee, nil
}

// ListByDueRange returns fees due in [from, to), oldest due date first.
func (r *FeeRepository) ListByDueRange(ctx context.Context, from, to time.Time) ([]models.FeeRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM fees WHERE due_date >= $1 AND due_date < $2 ORDER BY due_date ASC, student_name ASC`, feeColumns)
	var rows []feeRow
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("list fees by due range: %w", err)
	}
	return toModels(rows), nil
}

// ListByStudent returns the fee history of a student, newest due date first.
func (r *FeeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.FeeRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM fees WHERE student_id = $1 ORDER BY due_date DESC`, feeColumns)
	var rows []feeRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list fees by student: %w", err)
	}
	return toModels(rows), nil
}

// UpdateLedger writes the payment history, totals, adjustments and status only if the stored
// version still equals expectedVersion. It returns false when another writer got there first.
func (r *FeeRepository) UpdateLedger(ctx context.Context, fee *models.FeeRecord, expectedVersion int) (bool, error) {
	row := feeRowFromModel(fee)
	const query = `UPDATE fees SET payment_history = $1, total_paid_amount = $2, status = $3,
        late_fee_amount = $4, late_fee_reason = $5, discount_amount = $6, discount_reason = $7,
        version = version + 1, updated_at = $8
        WHERE id = $9 AND version = $10`
	res, err := r.db.ExecContext(ctx, query,
		row.PaymentHistory, row.TotalPaidAmount, row.Status,
		row.LateFeeAmount, row.LateFeeReason, row.DiscountAmount, row.DiscountReason,
		row.UpdatedAt, row.ID, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update fee ledger: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update fee ledger rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	fee.Version = expectedVersion + 1
	return true, nil
}

// UpdateStatus corrects a drifted stored status without bumping the version.
func (r *FeeRepository) UpdateStatus(ctx context.Context, id string, status models.FeeStatus, expectedVersion int) error {
	const query = `UPDATE fees SET status = $1 WHERE id = $2 AND version = $3`
	if _, err := r.db.ExecContext(ctx, query, string(status), id, expectedVersion); err != nil {
		return fmt.Errorf("update fee status: %w", err)
	}
	return nil
}

// Delete removes a fee. Returns false when nothing was deleted.
func (r *FeeRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fees WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete fee: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete fee rows: %w", err)
	}
	return affected > 0, nil
}

func toModels(rows []feeRow) []models.FeeRecord {
	fees := make([]models.FeeRecord, 0, len(rows))
	for _, row := range rows {
		fees = append(fees, row.toModel())
	}
	return fees
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
