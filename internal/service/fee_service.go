package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/tkd-admin-api/internal/dto"
	"github.com/noah-isme/tkd-admin-api/internal/models"
	appErrors "github.com/noah-isme/tkd-admin-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type feeRepository interface {
	Create(ctx context.Context, fee *models.FeeRecord) error
	FindByID(ctx context.Context, id string) (*models.FeeRecord, error)
	ListByDueRange(ctx context.Context, from, to time.Time) ([]models.FeeRecord, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.FeeRecord, error)
	UpdateLedger(ctx context.Context, fee *models.FeeRecord, expectedVersion int) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.FeeStatus, expectedVersion int) error
	Delete(ctx context.Context, id string) (bool, error)
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// CreateFeeRequest is the payload for a manually created fee.
type CreateFeeRequest struct {
	StudentID   string             `json:"studentId"`
	StudentName string             `json:"studentName" validate:"required_without=StudentID,max=150"`
	Course      string             `json:"course" validate:"required,max=100"`
	FeeType     string             `json:"feeType" validate:"required,max=100"`
	Amount      decimal.Decimal    `json:"amount"`
	DueDate     string             `json:"dueDate" validate:"required,datetime=2006-01-02"`
	LateFee     *models.Adjustment `json:"lateFee,omitempty"`
	Discount    *models.Adjustment `json:"discount,omitempty"`
	Notes       string             `json:"notes" validate:"max=500"`
}

// RecordPaymentRequest is the payload for a payment against an existing fee.
type RecordPaymentRequest struct {
	Amount        decimal.Decimal    `json:"amount"`
	PaymentMethod string             `json:"paymentMethod" validate:"required"`
	PaidDate      string             `json:"paidDate" validate:"omitempty,datetime=2006-01-02"`
	TransactionID string             `json:"transactionId" validate:"max=100"`
	LateFee       *models.Adjustment `json:"lateFee,omitempty"`
	Discount      *models.Adjustment `json:"discount,omitempty"`
	Notes         string             `json:"notes" validate:"max=500"`
}

// FeeServiceConfig tunes ledger behaviour.
type FeeServiceConfig struct {
	PartialOverdue bool
	MaxRetries     int
	CacheTTL       time.Duration
}

// FeeServiceParams groups constructor dependencies.
type FeeServiceParams struct {
	Repo      feeRepository
	Students  studentLookup
	Cache     *CacheService
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    FeeServiceConfig
}

// FeeService runs the fee ledger use-cases.
type FeeService struct {
	repo      feeRepository
	students  studentLookup
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	policy    models.StatusPolicy
	cfg       FeeServiceConfig
	now       func() time.Time
}

// NewFeeService constructs a FeeService.
func NewFeeService(params FeeServiceParams) *FeeService {
	cfg := params.Config
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeService{
		repo:      params.Repo,
		students:  params.Students,
		cache:     params.Cache,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
		policy:    models.StatusPolicy{PartialOverdue: cfg.PartialOverdue},
		cfg:       cfg,
		now:       time.Now,
	}
}

// Create records a new unpaid fee.
func (s *FeeService) Create(ctx context.Context, req CreateFeeRequest, actorID string) (*models.FeeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee payload")
	}
	due, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dueDate must be YYYY-MM-DD")
	}

	studentName := strings.TrimSpace(req.StudentName)
	if req.StudentID != "" {
		studentID, ok := canonicalID(req.StudentID)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "studentId must be a UUID")
		}
		req.StudentID = studentID
		student, err := s.students.FindByID(ctx, studentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		studentName = student.FullName
	}
	if studentName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentName is required")
	}

	fee, err := models.NewFeeRecord(models.NewFeeParams{
		StudentID:   req.StudentID,
		StudentName: studentName,
		Course:      req.Course,
		FeeType:     req.FeeType,
		Amount:      req.Amount,
		DueDate:     due,
		LateFee:     req.LateFee,
		Discount:    req.Discount,
		Notes:       req.Notes,
		CreatedBy:   actorID,
	}, s.now().UTC(), s.policy)
	if err != nil {
		return nil, ledgerError(err)
	}
	if err := s.repo.Create(ctx, fee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee")
	}
	s.invalidateMonth(ctx, fee.DueDate)
	s.logger.Info("fee created", zap.String("fee_id", fee.ID), zap.String("student", fee.StudentName), zap.String("amount", fee.BaseAmount.String()))
	return fee, nil
}

// Get returns one fee with its status derived as of now.
func (s *FeeService) Get(ctx context.Context, id string) (*models.FeeRecord, error) {
	fee, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.reconcile(ctx, fee, s.now().UTC())
	return fee, nil
}

// List returns the fees due in the filter month with the month's statistics.
// The statistics always cover the whole month; the status filter only narrows the fee list.
// The boolean result reports whether the month was served from cache.
func (s *FeeService) List(ctx context.Context, filter models.FeeFilter) (*dto.FeeListResponse, bool, error) {
	now := s.now().UTC()
	if filter.Year == 0 {
		filter.Year = now.Year()
	}
	if filter.Month == 0 {
		filter.Month = int(now.Month())
	}
	if filter.Month < 1 || filter.Month > 12 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
	}
	if filter.Year < 2000 || filter.Year > 2100 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "year is out of range")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}

	// The generation is read before the month is loaded. A payment committed after that read
	// bumps the generation, so whatever this call caches is keyed to a generation nobody reads again.
	gen, cacheable := s.cache.Generation(ctx, monthGenerationKey(filter.Year, filter.Month))
	key := monthCacheKey(filter.Year, filter.Month, gen, now)
	if cacheable {
		var cached dto.FeeListResponse
		if s.cache.Get(ctx, key, &cached) {
			return filterByStatus(&cached, filter.Status), true, nil
		}
	}

	start, end := filter.PeriodBounds()
	fees, err := s.repo.ListByDueRange(ctx, start, end)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fees")
	}
	for i := range fees {
		s.reconcile(ctx, &fees[i], now)
	}
	resp := &dto.FeeListResponse{
		Fees:       fees,
		Statistics: AggregateFees(fees, filter.Month, filter.Year, now, s.policy),
	}
	if cacheable {
		s.cache.Set(ctx, key, resp, s.cfg.CacheTTL)
	}
	return filterByStatus(resp, filter.Status), false, nil
}

// ListByStudent returns the fee history of one student, newest due date first.
func (s *FeeService) ListByStudent(ctx context.Context, studentID string) ([]models.FeeRecord, error) {
	studentID, ok := canonicalID(studentID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	fees, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student fees")
	}
	now := s.now().UTC()
	for i := range fees {
		s.reconcile(ctx, &fees[i], now)
	}
	return fees, nil
}

// RecordPayment appends a payment to a fee. The write is a compare-and-swap on the record
// version; when another writer wins, the record is reloaded and the payment re-validated
// against the fresh balance, up to the configured number of retries.
func (s *FeeService) RecordPayment(ctx context.Context, id string, req RecordPaymentRequest, actorID string) (*models.FeeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	method, ok := parsePaymentMethod(req.PaymentMethod)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported payment method %q", req.PaymentMethod))
	}
	input := models.PaymentInput{
		Amount:        req.Amount,
		Method:        method,
		TransactionID: req.TransactionID,
		LateFee:       req.LateFee,
		Discount:      req.Discount,
		Notes:         req.Notes,
		RecordedBy:    actorID,
	}
	if req.PaidDate != "" {
		paid, err := time.Parse(dateLayout, req.PaidDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "paidDate must be YYYY-MM-DD")
		}
		input.PaidDate = paid
	}

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		fee, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := fee.Version
		payment, err := fee.ApplyPayment(input, s.now().UTC(), s.policy)
		if err != nil {
			return nil, ledgerError(err)
		}
		written, err := s.repo.UpdateLedger(ctx, fee, expected)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
		}
		if written {
			s.invalidateMonth(ctx, fee.DueDate)
			s.metrics.RecordPayment(string(payment.PaymentMethod), payment.Amount)
			s.logger.Info("payment recorded",
				zap.String("fee_id", fee.ID),
				zap.String("payment_id", payment.ID),
				zap.String("amount", payment.Amount.String()),
				zap.String("status", string(fee.Status)),
				zap.Int("attempt", attempt+1),
			)
			return fee, nil
		}
		s.metrics.RecordPaymentConflict()
		s.logger.Debug("fee version moved, retrying payment", zap.String("fee_id", id), zap.Int("expected_version", expected), zap.Int("attempt", attempt+1))
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "fee was modified concurrently, please retry")
}

// Delete removes a fee as an administrative override.
func (s *FeeService) Delete(ctx context.Context, id string) error {
	fee, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, fee.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete fee")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "fee not found")
	}
	s.invalidateMonth(ctx, fee.DueDate)
	s.logger.Warn("fee deleted", zap.String("fee_id", fee.ID), zap.String("paid", fee.TotalPaidAmount.String()))
	return nil
}

func (s *FeeService) load(ctx context.Context, id string) (*models.FeeRecord, error) {
	id, ok := canonicalID(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
	}
	fee, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
	}
	return fee, nil
}

// canonicalID normalises a record id. Anything that is not a UUID cannot exist in the store.
func canonicalID(raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// reconcile derives the status as of now and writes it back when the stored copy disagrees.
// The write-back is best-effort and guarded by version so it never clobbers a newer ledger write.
func (s *FeeService) reconcile(ctx context.Context, fee *models.FeeRecord, now time.Time) {
	stored := fee.Status
	if !fee.Refresh(now, s.policy) {
		return
	}
	s.logger.Info("fee status drift corrected",
		zap.String("fee_id", fee.ID),
		zap.String("stored", string(stored)),
		zap.String("derived", string(fee.Status)),
	)
	if err := s.repo.UpdateStatus(ctx, fee.ID, fee.Status, fee.Version); err != nil {
		s.logger.Warn("persist derived fee status", zap.String("fee_id", fee.ID), zap.Error(err))
	}
}

// invalidateMonth runs after a ledger write commits. The generation bump is what keeps readers
// off stale entries; the pattern delete only reclaims memory.
func (s *FeeService) invalidateMonth(ctx context.Context, due time.Time) {
	due = due.UTC()
	year, month := due.Year(), int(due.Month())
	if err := s.cache.Bump(ctx, monthGenerationKey(year, month)); err != nil {
		s.logger.Warn("bump fee statistics generation", zap.Int("year", year), zap.Int("month", month), zap.Error(err))
	}
	pattern := fmt.Sprintf("fees:stats:%04d-%02d:*", year, month)
	if err := s.cache.Invalidate(ctx, pattern); err != nil {
		s.logger.Warn("invalidate fee statistics cache", zap.String("pattern", pattern), zap.Error(err))
	}
}

func monthGenerationKey(year, month int) string {
	return fmt.Sprintf("fees:gen:%04d-%02d", year, month)
}

func monthCacheKey(year, month int, gen int64, asOf time.Time) string {
	return fmt.Sprintf("fees:stats:%04d-%02d:gen:%d:asof:%s", year, month, gen, asOf.Format(dateLayout))
}

func filterByStatus(resp *dto.FeeListResponse, status *models.FeeStatus) *dto.FeeListResponse {
	if resp.Fees == nil {
		resp.Fees = []models.FeeRecord{}
	}
	if status == nil {
		return resp
	}
	filtered := make([]models.FeeRecord, 0, len(resp.Fees))
	for _, fee := range resp.Fees {
		if fee.Status == *status {
			filtered = append(filtered, fee)
		}
	}
	return &dto.FeeListResponse{Fees: filtered, Statistics: resp.Statistics}
}

func parsePaymentMethod(raw string) (models.PaymentMethod, bool) {
	for _, m := range []models.PaymentMethod{
		models.PaymentMethodCash,
		models.PaymentMethodUPI,
		models.PaymentMethodBankTransfer,
		models.PaymentMethodCard,
		models.PaymentMethodCheque,
	} {
		if strings.EqualFold(string(m), strings.TrimSpace(raw)) {
			return m, true
		}
	}
	return "", false
}

// ledgerError maps ledger rule violations onto API errors.
func ledgerError(err error) error {
	if errors.Is(err, models.ErrExceedsBalance) {
		return appErrors.Wrap(err, appErrors.ErrOverpayment.Code, appErrors.ErrOverpayment.Status, err.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
}
