package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tkd-admin-api/internal/dto"
	"github.com/noah-isme/tkd-admin-api/internal/middleware"
	"github.com/noah-isme/tkd-admin-api/internal/models"
	"github.com/noah-isme/tkd-admin-api/internal/service"
	appErrors "github.com/noah-isme/tkd-admin-api/pkg/errors"
)

type responseEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Meta  map[string]interface{} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type fakeFeeSrv struct {
	fee        *models.FeeRecord
	list       *dto.FeeListResponse
	listHit    bool
	err        error
	lastFilter models.FeeFilter
	lastCreate service.CreateFeeRequest
	lastPay    service.RecordPaymentRequest
	lastActor  string
	deletedID  string
}

func (f *fakeFeeSrv) Create(_ context.Context, req service.CreateFeeRequest, actor string) (*models.FeeRecord, error) {
	f.lastCreate, f.lastActor = req, actor
	return f.fee, f.err
}

func (f *fakeFeeSrv) Get(context.Context, string) (*models.FeeRecord, error) {
	return f.fee, f.err
}

func (f *fakeFeeSrv) List(_ context.Context, filter models.FeeFilter) (*dto.FeeListResponse, bool, error) {
	f.lastFilter = filter
	return f.list, f.listHit, f.err
}

func (f *fakeFeeSrv) ListByStudent(context.Context, string) ([]models.FeeRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.FeeRecord{*f.fee}, nil
}

func (f *fakeFeeSrv) RecordPayment(_ context.Context, _ string, req service.RecordPaymentRequest, actor string) (*models.FeeRecord, error) {
	f.lastPay, f.lastActor = req, actor
	return f.fee, f.err
}

func (f *fakeFeeSrv) Delete(_ context.Context, id string) error {
	f.deletedID = id
	return f.err
}

type fakeExporter struct{}

func (fakeExporter) MonthlyLedger(_ context.Context, filter models.FeeFilter, format string) (*service.ExportFile, error) {
	return &service.ExportFile{Filename: "fees-2026-10.csv", ContentType: "text/csv", Body: []byte("Student\n")}, nil
}

func (fakeExporter) Receipt(context.Context, string) (*service.ExportFile, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
}

func sampleFee() *models.FeeRecord {
	due := time.Date(2026, time.October, 31, 0, 0, 0, 0, time.UTC)
	return &models.FeeRecord{
		ID:               "fee-1",
		StudentName:      "Min-ji Park",
		FeeType:          models.FeeTypeMonthly,
		BaseAmount:       decimal.NewFromInt(2000),
		DueDate:          due,
		PaymentHistory:   models.PaymentHistory{},
		TotalPaidAmount:  decimal.Zero,
		Status:           models.FeeStatusPending,
		TotalAmount:      decimal.NewFromInt(2000),
		RemainingBalance: decimal.NewFromInt(2000),
	}
}

func newFeeTestContext(method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleInstructor})
	return c, rec
}

func TestFeeHandlerCreate(t *testing.T) {
	srv := &fakeFeeSrv{fee: sampleFee()}
	handler := NewFeeHandler(srv, fakeExporter{})

	body := []byte(`{"studentName":"Min-ji Park","course":"Junior","feeType":"Monthly Fee","amount":2000,"dueDate":"2026-10-31"}`)
	c, rec := newFeeTestContext(http.MethodPost, "/api/v1/fees", body)
	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, srv.lastCreate.Amount.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, "user-1", srv.lastActor)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "Pending", envelope.Data["status"])
	assert.Equal(t, "2000", envelope.Data["remainingBalance"])
}

func TestFeeHandlerCreateRejectsMalformedBody(t *testing.T) {
	handler := NewFeeHandler(&fakeFeeSrv{}, fakeExporter{})

	c, rec := newFeeTestContext(http.MethodPost, "/api/v1/fees", []byte(`{"amount":"abc"}`))
	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeeHandlerListParsesFilter(t *testing.T) {
	srv := &fakeFeeSrv{list: &dto.FeeListResponse{Fees: []models.FeeRecord{}, Statistics: models.FeeStatistics{Month: 10, Year: 2026}}, listHit: true}
	handler := NewFeeHandler(srv, fakeExporter{})

	c, rec := newFeeTestContext(http.MethodGet, "/api/v1/fees?month=10&year=2026&status=overdue", nil)
	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, srv.lastFilter.Month)
	require.NotNil(t, srv.lastFilter.Status)
	assert.Equal(t, models.FeeStatusOverdue, *srv.lastFilter.Status)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Data, "statistics")
	assert.Contains(t, envelope.Data, "fees")
}

func TestFeeHandlerListRejectsBadQuery(t *testing.T) {
	handler := NewFeeHandler(&fakeFeeSrv{}, fakeExporter{})

	for _, target := range []string{"/api/v1/fees?status=cancelled", "/api/v1/fees?month=oct"} {
		c, rec := newFeeTestContext(http.MethodGet, target, nil)
		handler.List(c)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestFeeHandlerRecordPaymentMapsErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "overpayment", err: appErrors.Clone(appErrors.ErrOverpayment, "payment exceeds remaining balance"), status: http.StatusBadRequest, code: "PAYMENT_EXCEEDS_BALANCE"},
		{name: "missing fee", err: appErrors.Clone(appErrors.ErrNotFound, "fee not found"), status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "lost race", err: appErrors.Clone(appErrors.ErrConflict, "retry"), status: http.StatusConflict, code: "CONFLICT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewFeeHandler(&fakeFeeSrv{err: tt.err}, fakeExporter{})
			c, rec := newFeeTestContext(http.MethodPost, "/api/v1/fees/fee-1/payments", []byte(`{"amount":"2500","paymentMethod":"Cash"}`))
			c.Params = gin.Params{{Key: "id", Value: "fee-1"}}
			handler.RecordPayment(c)

			assert.Equal(t, tt.status, rec.Code)
			var envelope responseEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
			require.NotNil(t, envelope.Error)
			assert.Equal(t, tt.code, envelope.Error.Code)
		})
	}
}

func TestFeeHandlerRecordPaymentSuccess(t *testing.T) {
	fee := sampleFee()
	fee.Status = models.FeeStatusPartial
	srv := &fakeFeeSrv{fee: fee}
	handler := NewFeeHandler(srv, fakeExporter{})

	c, rec := newFeeTestContext(http.MethodPost, "/api/v1/fees/fee-1/payments", []byte(`{"amount":"800","paymentMethod":"UPI","transactionId":"UPI-42"}`))
	c.Params = gin.Params{{Key: "id", Value: "fee-1"}}
	handler.RecordPayment(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "UPI-42", srv.lastPay.TransactionID)
	assert.True(t, srv.lastPay.Amount.Equal(decimal.NewFromInt(800)))
}

func TestFeeHandlerDeleteAndExports(t *testing.T) {
	srv := &fakeFeeSrv{}
	handler := NewFeeHandler(srv, fakeExporter{})

	c, rec := newFeeTestContext(http.MethodDelete, "/api/v1/fees/fee-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "fee-1"}}
	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "fee-1", srv.deletedID)

	c, rec = newFeeTestContext(http.MethodGet, "/api/v1/fees/export?format=csv", nil)
	handler.Export(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "fees-2026-10.csv")

	c, rec = newFeeTestContext(http.MethodGet, "/api/v1/fees/missing/receipt", nil)
	handler.Receipt(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
