package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tkd-admin-api/internal/dto"
	"github.com/noah-isme/tkd-admin-api/internal/middleware"
	"github.com/noah-isme/tkd-admin-api/internal/models"
	"github.com/noah-isme/tkd-admin-api/internal/service"
	appErrors "github.com/noah-isme/tkd-admin-api/pkg/errors"
	"github.com/noah-isme/tkd-admin-api/pkg/response"
)

type feeService interface {
	Create(ctx context.Context, req service.CreateFeeRequest, actorID string) (*models.FeeRecord, error)
	Get(ctx context.Context, id string) (*models.FeeRecord, error)
	List(ctx context.Context, filter models.FeeFilter) (*dto.FeeListResponse, bool, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.FeeRecord, error)
	RecordPayment(ctx context.Context, id string, req service.RecordPaymentRequest, actorID string) (*models.FeeRecord, error)
	Delete(ctx context.Context, id string) error
}

type feeExporter interface {
	MonthlyLedger(ctx context.Context, filter models.FeeFilter, format string) (*service.ExportFile, error)
	Receipt(ctx context.Context, feeID string) (*service.ExportFile, error)
}

// FeeHandler exposes the fee ledger endpoints.
type FeeHandler struct {
	fees     feeService
	exporter feeExporter
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(fees feeService, exporter feeExporter) *FeeHandler {
	return &FeeHandler{fees: fees, exporter: exporter}
}

// Create godoc
// @Summary Create fee
// @Description Record a new unpaid fee for a student
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body service.CreateFeeRequest true "Fee payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fees [post]
func (h *FeeHandler) Create(c *gin.Context) {
	var req service.CreateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid fee payload"))
		return
	}
	fee, err := h.fees.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, fee.ID)
	response.Created(c, fee)
}

// List godoc
// @Summary List fees of a month
// @Description Fees due in the month with the month's collection statistics
// @Tags Fees
// @Produce json
// @Param month query int false "Month (1-12), defaults to current"
// @Param year query int false "Year, defaults to current"
// @Param status query string false "Pending, Partial, Paid or Overdue"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /fees [get]
func (h *FeeHandler) List(c *gin.Context) {
	filter, err := parseFeeFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, cacheHit, err := h.fees.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get fee
// @Tags Fees
// @Produce json
// @Param id path string true "Fee ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fees/{id} [get]
func (h *FeeHandler) Get(c *gin.Context) {
	fee, err := h.fees.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// RecordPayment godoc
// @Summary Record payment
// @Description Append a payment to the fee's history. Overpayment is rejected.
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Fee ID"
// @Param payload body service.RecordPaymentRequest true "Payment payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fees/{id}/payments [post]
func (h *FeeHandler) RecordPayment(c *gin.Context) {
	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}
	fee, err := h.fees.RecordPayment(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// Delete godoc
// @Summary Delete fee
// @Description Administrative override removing a fee and its payment history
// @Tags Fees
// @Param id path string true "Fee ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fees/{id} [delete]
func (h *FeeHandler) Delete(c *gin.Context) {
	if err := h.fees.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListByStudent godoc
// @Summary Fee history of a student
// @Tags Fees
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/fees [get]
func (h *FeeHandler) ListByStudent(c *gin.Context) {
	fees, err := h.fees.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fees, nil)
}

// Export godoc
// @Summary Export monthly ledger
// @Tags Fees
// @Produce text/csv
// @Produce application/pdf
// @Param month query int false "Month (1-12)"
// @Param year query int false "Year"
// @Param status query string false "Status filter"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /fees/export [get]
func (h *FeeHandler) Export(c *gin.Context) {
	filter, err := parseFeeFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exporter.MonthlyLedger(c.Request.Context(), filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Receipt godoc
// @Summary Fee receipt
// @Tags Fees
// @Produce application/pdf
// @Param id path string true "Fee ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /fees/{id}/receipt [get]
func (h *FeeHandler) Receipt(c *gin.Context) {
	file, err := h.exporter.Receipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

func parseFeeFilter(c *gin.Context) (models.FeeFilter, error) {
	var filter models.FeeFilter
	month, err := queryInt(c, "month")
	if err != nil {
		return filter, err
	}
	year, err := queryInt(c, "year")
	if err != nil {
		return filter, err
	}
	filter.Month, filter.Year = month, year
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, ok := models.ParseFeeStatus(raw)
		if !ok {
			return filter, appErrors.Clone(appErrors.ErrValidation, "status must be Pending, Partial, Paid or Overdue")
		}
		filter.Status = &status
	}
	return filter, nil
}
