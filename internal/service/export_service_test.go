package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tkd-admin-api/internal/models"
	appErrors "github.com/noah-isme/tkd-admin-api/pkg/errors"
)

func newTestExportService(t *testing.T) *ExportService {
	t.Helper()
	upcoming := time.Date(2026, time.October, 31, 0, 0, 0, 0, time.UTC)
	repo := newMemFeeRepo(
		buildFee(t, feeOneID, "2000", upcoming, "800"),
		buildFee(t, "b", "1000", upcoming),
	)
	fees := newTestFeeService(repo, nil, FeeServiceConfig{})
	return NewExportService(fees, ExportConfig{SchoolName: "Taekwon-Do Academy", Currency: "INR"}, nil, nil, nil)
}

func TestExportServiceMonthlyLedgerCSV(t *testing.T) {
	svc := newTestExportService(t)

	file, err := svc.MonthlyLedger(context.Background(), models.FeeFilter{Month: 10, Year: 2026}, "")
	require.NoError(t, err)
	assert.Equal(t, "fees-2026-10.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)

	body := strings.TrimPrefix(string(file.Body), "\ufeff")
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "Student,Course,Fee Type,Due Date,Total,Paid,Balance,Status", lines[0])
	assert.Contains(t, body, "2000.00,800.00,1200.00,Partial")
	assert.Equal(t, ",,,,,,,", lines[3])
	assert.Equal(t, "Collected,INR 800.00 (0 paid),,,,,,", lines[5])
}

func TestExportServiceMonthlyLedgerPDF(t *testing.T) {
	svc := newTestExportService(t)

	file, err := svc.MonthlyLedger(context.Background(), models.FeeFilter{Month: 10, Year: 2026}, "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF")))

	_, err = svc.MonthlyLedger(context.Background(), models.FeeFilter{Month: 10, Year: 2026}, "xlsx")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceReceipt(t *testing.T) {
	svc := newTestExportService(t)

	file, err := svc.Receipt(context.Background(), feeOneID)
	require.NoError(t, err)
	assert.Equal(t, "receipt-"+feeOneID+".pdf", file.Filename)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF")))

	_, err = svc.Receipt(context.Background(), unknownID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Receipt(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
