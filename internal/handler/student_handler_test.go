package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tkd-admin-api/internal/models"
	"github.com/noah-isme/tkd-admin-api/internal/service"
	appErrors "github.com/noah-isme/tkd-admin-api/pkg/errors"
)

type fakeStudentSrv struct {
	filter  models.StudentFilter
	created service.CreateStudentRequest
	err     error
}

func (f *fakeStudentSrv) List(_ context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	f.filter = filter
	return []models.Student{{ID: "stu-1", FullName: "Min-ji Park", BeltLevel: "Green"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (f *fakeStudentSrv) Get(context.Context, string) (*models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Student{ID: "stu-1"}, nil
}

func (f *fakeStudentSrv) Create(_ context.Context, req service.CreateStudentRequest) (*models.Student, error) {
	f.created = req
	return &models.Student{ID: "stu-2", FullName: req.FullName, BeltLevel: req.BeltLevel, Active: true}, nil
}

func TestStudentHandlerList(t *testing.T) {
	srv := &fakeStudentSrv{}
	handler := NewStudentHandler(srv)

	c, rec := newFeeTestContext(http.MethodGet, "/api/v1/students?belt=Green&active=true&page=2&sort=full_name", nil)
	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Green", srv.filter.BeltLevel)
	require.NotNil(t, srv.filter.Active)
	assert.True(t, *srv.filter.Active)
	assert.Equal(t, 2, srv.filter.Page)
	assert.Equal(t, "full_name", srv.filter.SortBy)

	var body struct {
		Data       []models.Student  `json:"data"`
		Pagination models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, 1, body.Pagination.TotalCount)
}

func TestStudentHandlerListRejectsBadActive(t *testing.T) {
	handler := NewStudentHandler(&fakeStudentSrv{})
	c, rec := newFeeTestContext(http.MethodGet, "/api/v1/students?active=maybe", nil)
	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudentHandlerGetNotFound(t *testing.T) {
	handler := NewStudentHandler(&fakeStudentSrv{err: appErrors.Clone(appErrors.ErrNotFound, "student not found")})
	c, rec := newFeeTestContext(http.MethodGet, "/api/v1/students/missing", nil)
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStudentHandlerCreate(t *testing.T) {
	srv := &fakeStudentSrv{}
	handler := NewStudentHandler(srv)

	c, rec := newFeeTestContext(http.MethodPost, "/api/v1/students", []byte(`{"fullName":"Arjun Rao","course":"Adult","beltLevel":"White"}`))
	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Arjun Rao", srv.created.FullName)
}
