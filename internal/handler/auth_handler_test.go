package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tkd-admin-api/internal/models"
	appErrors "github.com/noah-isme/tkd-admin-api/pkg/errors"
)

type fakeAuthSrv struct {
	logoutReq  models.RefreshTokenRequest
	logoutUser string
	loginErr   error
}

func (f *fakeAuthSrv) Login(context.Context, models.LoginRequest) (*models.LoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeAuthSrv) RefreshToken(context.Context, models.RefreshTokenRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (f *fakeAuthSrv) Logout(_ context.Context, req models.RefreshTokenRequest, userID string) error {
	f.logoutReq, f.logoutUser = req, userID
	return nil
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{loginErr: appErrors.ErrInvalidCredentials})
	c, rec := newFeeTestContext(http.MethodPost, "/api/v1/auth/login", []byte(`{"email":"a@b.c","password":"x"}`))
	handler.Login(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerRefresh(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})
	c, rec := newFeeTestContext(http.MethodPost, "/api/v1/auth/refresh", []byte(`{"refresh_token":"refresh"}`))
	handler.Refresh(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "refresh-2")
}

func TestAuthHandlerLogout(t *testing.T) {
	srv := &fakeAuthSrv{}
	handler := NewAuthHandler(srv)

	c, rec := newFeeTestContext(http.MethodPost, "/api/v1/auth/logout", []byte(`{"refresh_token":"refresh"}`))
	c.Request.Header.Set("User-Agent", "dojo-desk")
	handler.Logout(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-1", srv.logoutUser)
	assert.Equal(t, "refresh", srv.logoutReq.RefreshToken)
	assert.Equal(t, "dojo-desk", srv.logoutReq.UserAgent)

	c, rec = newFeeTestContext(http.MethodPost, "/api/v1/auth/logout", []byte(`{}`))
	handler.Logout(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
