package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tkd-admin-api/internal/models"
	appErrors "github.com/noah-isme/tkd-admin-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
}

// CreateStudentRequest holds payload for registering a student.
type CreateStudentRequest struct {
	FullName     string `json:"fullName" validate:"required,max=150"`
	Course       string `json:"course" validate:"required,max=100"`
	BeltLevel    string `json:"beltLevel" validate:"required"`
	Phone        string `json:"phone" validate:"omitempty,max=30"`
	Email        string `json:"email" validate:"omitempty,email"`
	GuardianName string `json:"guardianName" validate:"max=150"`
	JoinedAt     string `json:"joinedAt" validate:"omitempty,datetime=2006-01-02"`
}

// StudentService handles the student registry.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.BeltLevel != "" && !models.IsBeltLevel(filter.BeltLevel) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown belt level")
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	id, ok := canonicalID(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new active student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if !models.IsBeltLevel(req.BeltLevel) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown belt level")
	}
	student := &models.Student{
		FullName:     strings.TrimSpace(req.FullName),
		Course:       req.Course,
		BeltLevel:    req.BeltLevel,
		Phone:        req.Phone,
		Email:        req.Email,
		GuardianName: req.GuardianName,
		Active:       true,
	}
	if req.JoinedAt != "" {
		joined, err := time.Parse(dateLayout, req.JoinedAt)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "joinedAt must be YYYY-MM-DD")
		}
		student.JoinedAt = joined
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student registered", zap.String("student_id", student.ID), zap.String("belt", student.BeltLevel))
	return student, nil
}
