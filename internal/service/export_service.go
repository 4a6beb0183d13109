package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/tkd-admin-api/internal/dto"
	"github.com/noah-isme/tkd-admin-api/internal/models"
	appErrors "github.com/noah-isme/tkd-admin-api/pkg/errors"
	"github.com/noah-isme/tkd-admin-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type feeLedger interface {
	List(ctx context.Context, filter models.FeeFilter) (*dto.FeeListResponse, bool, error)
	Get(ctx context.Context, id string) (*models.FeeRecord, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export output.
type ExportConfig struct {
	SchoolName string
	Currency   string
}

// ExportFile is a rendered document ready to be streamed to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders the monthly fee ledger and payment receipts.
type ExportService struct {
	fees   feeLedger
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	cfg    ExportConfig
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(fees feeLedger, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(export.WithSummaryRows(), export.WithUTF8BOM())
	}
	if pdf == nil {
		pdf = export.NewPDFExporter(cfg.SchoolName)
	}
	return &ExportService{fees: fees, csv: csv, pdf: pdf, logger: logger, cfg: cfg}
}

var ledgerHeaders = []string{"Student", "Course", "Fee Type", "Due Date", "Total", "Paid", "Balance", "Status"}

// MonthlyLedger renders the fees of one month with the statistics as summary lines.
func (s *ExportService) MonthlyLedger(ctx context.Context, filter models.FeeFilter, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	list, _, err := s.fees.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	stats := list.Statistics
	data := export.Dataset{Headers: ledgerHeaders}
	for _, fee := range list.Fees {
		data.Rows = append(data.Rows, map[string]string{
			"Student":  fee.StudentName,
			"Course":   fee.Course,
			"Fee Type": fee.FeeType,
			"Due Date": fee.DueDate.Format(dateLayout),
			"Total":    fee.TotalAmount.StringFixed(2),
			"Paid":     fee.TotalPaidAmount.StringFixed(2),
			"Balance":  fee.RemainingBalance.StringFixed(2),
			"Status":   string(fee.Status),
		})
	}
	data.Summary = []string{
		fmt.Sprintf("Billed: %s %s across %d fees", s.cfg.Currency, stats.TotalAmount.StringFixed(2), stats.TotalCount),
		fmt.Sprintf("Collected: %s %s (%d paid)", s.cfg.Currency, stats.PaidAmount.StringFixed(2), stats.PaidCount),
		fmt.Sprintf("Pending: %s %s (%d)", s.cfg.Currency, stats.PendingAmount.StringFixed(2), stats.PendingCount),
		fmt.Sprintf("Partial: %s %s (%d)", s.cfg.Currency, stats.PartialAmount.StringFixed(2), stats.PartialCount),
		fmt.Sprintf("Overdue: %s %s (%d)", s.cfg.Currency, stats.OverdueAmount.StringFixed(2), stats.OverdueCount),
	}

	base := fmt.Sprintf("fees-%04d-%02d", stats.Year, stats.Month)
	var file *ExportFile
	switch format {
	case ExportFormatPDF:
		body, err := s.pdf.Render(data, fmt.Sprintf("Fee ledger %04d-%02d", stats.Year, stats.Month))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render ledger")
		}
		file = &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Body: body}
	default:
		body, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render ledger")
		}
		file = &ExportFile{Filename: base + ".csv", ContentType: "text/csv", Body: body}
	}
	s.logger.Info("fee ledger exported", zap.String("file", file.Filename), zap.Int("rows", len(data.Rows)))
	return file, nil
}

var receiptHeaders = []string{"Date", "Method", "Reference", "Amount", "Recorded By"}

// Receipt renders a PDF statement of one fee and every payment made against it.
func (s *ExportService) Receipt(ctx context.Context, feeID string) (*ExportFile, error) {
	fee, err := s.fees.Get(ctx, feeID)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{Headers: receiptHeaders}
	for _, p := range fee.PaymentHistory {
		data.Rows = append(data.Rows, map[string]string{
			"Date":        p.PaidDate.Format(dateLayout),
			"Method":      string(p.PaymentMethod),
			"Reference":   p.TransactionID,
			"Amount":      p.Amount.StringFixed(2),
			"Recorded By": p.RecordedBy,
		})
	}
	data.Summary = []string{
		fmt.Sprintf("Student: %s (%s)", fee.StudentName, fee.Course),
		fmt.Sprintf("%s due %s", fee.FeeType, fee.DueDate.Format(dateLayout)),
		fmt.Sprintf("Base amount: %s %s", s.cfg.Currency, fee.BaseAmount.StringFixed(2)),
	}
	if fee.LateFee != nil {
		data.Summary = append(data.Summary, fmt.Sprintf("Late fee: %s %s %s", s.cfg.Currency, fee.LateFee.Amount.StringFixed(2), fee.LateFee.Reason))
	}
	if fee.Discount != nil {
		data.Summary = append(data.Summary, fmt.Sprintf("Discount: %s %s %s", s.cfg.Currency, fee.Discount.Amount.StringFixed(2), fee.Discount.Reason))
	}
	data.Summary = append(data.Summary,
		fmt.Sprintf("Total: %s %s", s.cfg.Currency, fee.TotalAmount.StringFixed(2)),
		fmt.Sprintf("Paid: %s %s", s.cfg.Currency, fee.TotalPaidAmount.StringFixed(2)),
		fmt.Sprintf("Balance: %s %s", s.cfg.Currency, fee.RemainingBalance.StringFixed(2)),
		fmt.Sprintf("Status: %s", fee.Status),
	)

	body, err := s.pdf.Render(data, "Fee receipt")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return &ExportFile{Filename: fmt.Sprintf("receipt-%s.pdf", fee.ID), ContentType: "application/pdf", Body: body}, nil
}
