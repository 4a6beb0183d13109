package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tkd-admin-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var feeRowColumns = []string{"id", "student_id", "student_name", "course", "fee_type", "base_amount", "late_fee_amount", "late_fee_reason",
	"discount_amount", "discount_reason", "due_date", "payment_history", "total_paid_amount", "status", "notes", "version",
	"created_by", "created_at", "updated_at"}

func TestFeeRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	due := time.Date(2026, time.October, 31, 0, 0, 0, 0, time.UTC)
	history := []byte(`[{"id":"p1","amount":"800","paymentMethod":"Cash","paidDate":"2026-10-05T00:00:00Z","recordedAt":"2026-10-05T00:00:00Z"}]`)
	rows := sqlmock.NewRows(feeRowColumns).
		AddRow("fee-1", "stu-1", "Min-ji Park", "Junior", "Monthly Fee", "2000", nil, nil, "500", "sibling", due, history, "800", "Partial", nil, 2, "user-1", due, due)
	mock.ExpectQuery(regexp.QuoteMeta("FROM fees WHERE id = $1")).WithArgs("fee-1").WillReturnRows(rows)

	fee, err := repo.FindByID(context.Background(), "fee-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", fee.StudentID)
	assert.Nil(t, fee.LateFee)
	require.NotNil(t, fee.Discount)
	assert.Equal(t, "sibling", fee.Discount.Reason)
	assert.True(t, fee.TotalAmount.Equal(decimal.NewFromInt(1500)))
	assert.True(t, fee.RemainingBalance.Equal(decimal.NewFromInt(700)))
	require.Len(t, fee.PaymentHistory, 1)
	assert.Equal(t, 2, fee.Version)
	assert.NoError(t, fee.CheckInvariants())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM fees WHERE id = $1")).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestFeeRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	args := make([]driver.Value, len(feeRowColumns))
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	mock.ExpectExec("INSERT INTO fees").WithArgs(args...).WillReturnResult(sqlmock.NewResult(1, 1))

	fee := &models.FeeRecord{ID: "fee-1", StudentName: "Arjun Rao", Course: "Adult", FeeType: "Exam Fee", BaseAmount: decimal.NewFromInt(1500), DueDate: time.Now()}
	require.NoError(t, repo.Create(context.Background(), fee))
	assert.Equal(t, 1, fee.Version)
	assert.False(t, fee.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryUpdateLedgerCompareAndSwap(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	fee := &models.FeeRecord{ID: "fee-1", BaseAmount: decimal.NewFromInt(2000), TotalPaidAmount: decimal.NewFromInt(800), Status: models.FeeStatusPartial, Version: 3}
	update := regexp.QuoteMeta("UPDATE fees SET payment_history = $1") + ".*" + regexp.QuoteMeta("WHERE id = $9 AND version = $10")

	mock.ExpectExec(update).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Partial", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "fee-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.UpdateLedger(context.Background(), fee, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, fee.Version)

	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.UpdateLedger(context.Background(), fee, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 4, fee.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryListByDueRange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	from := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	rows := sqlmock.NewRows(feeRowColumns).
		AddRow("fee-1", nil, "Walk-in", "Kids", "Registration Fee", "500", "50", "late", nil, nil, from, nil, "0", "Pending", "note", 1, nil, from, from)
	mock.ExpectQuery(regexp.QuoteMeta("FROM fees WHERE due_date >= $1 AND due_date < $2")).WithArgs(from, to).WillReturnRows(rows)

	fees, err := repo.ListByDueRange(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Empty(t, fees[0].StudentID)
	assert.NotNil(t, fees[0].PaymentHistory)
	assert.True(t, fees[0].TotalAmount.Equal(decimal.NewFromInt(550)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM fees WHERE id = $1")).WithArgs("fee-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM fees WHERE id = $1")).WithArgs("fee-2").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Delete(context.Background(), "fee-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Delete(context.Background(), "fee-2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
