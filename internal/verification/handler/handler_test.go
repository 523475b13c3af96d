package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"zkcred/internal/verification/handler/mocks"
	"zkcred/internal/verification/models"
	"zkcred/internal/verification/scope"
	dErrors "zkcred/pkg/domain-errors"
	"zkcred/pkg/platform/httputil"
)

type HandlerSuite struct {
	suite.Suite
	router      http.Handler
	ctrl        *gomock.Controller
	mockService *mocks.MockService
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	r := chi.NewRouter()
	New(s.mockService, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) errorBody(rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	var body httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (s *HandlerSuite) TestOpen() {
	expires := time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC)
	s.mockService.EXPECT().Open(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *models.OpenRequest) (*models.OpenResult, error) {
			s.Equal("age", req.VerificationType)
			s.Equal(float64(18), req.Conditions["minAge"])
			return &models.OpenResult{
				RequestID: "req-1",
				Kind:      models.KindVerification,
				Status:    models.StatusPending,
				ExpiresAt: expires,
			}, nil
		})

	rec := s.do(http.MethodPost, "/verifications", `{"verification_type":"age","conditions":{"minAge":18}}`)
	s.Equal(http.StatusCreated, rec.Code)

	var result models.OpenResult
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &result))
	s.Equal("req-1", result.RequestID)
	s.True(expires.Equal(result.ExpiresAt))
}

func (s *HandlerSuite) TestOpenInvalidJSON() {
	rec := s.do(http.MethodPost, "/verifications", "not json")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("bad_request", s.errorBody(rec).Error)
}

func (s *HandlerSuite) TestOpenValidationError() {
	s.mockService.EXPECT().Open(gomock.Any(), gomock.Any()).
		Return(nil, (&models.OpenRequest{VerificationType: "horoscope"}).Validate())

	rec := s.do(http.MethodPost, "/verifications", `{"verification_type":"horoscope"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	body := s.errorBody(rec)
	s.Equal("validation_error", body.Error)
	s.Require().Len(body.Fields, 1)
	s.Equal("verification_type", body.Fields[0].Field)
}

func (s *HandlerSuite) TestChallengeWithoutBody() {
	s.mockService.EXPECT().OpenChallenge(gomock.Any(), &models.ChallengeRequest{}).
		Return(&models.OpenResult{RequestID: "chl-1", Kind: models.KindChallenge, Status: models.StatusPending}, nil)

	req := httptest.NewRequest(http.MethodPost, "/challenges", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusCreated, rec.Code)
}

func (s *HandlerSuite) TestChallengeWithEmptyChunkedBody() {
	s.mockService.EXPECT().OpenChallenge(gomock.Any(), &models.ChallengeRequest{}).
		Return(&models.OpenResult{RequestID: "chl-1", Kind: models.KindChallenge, Status: models.StatusPending}, nil)

	req := httptest.NewRequest(http.MethodPost, "/challenges", io.MultiReader(strings.NewReader("")))
	s.Require().Equal(int64(-1), req.ContentLength)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *HandlerSuite) TestStatus() {
	s.Run("expired session is a normal answer", func() {
		s.mockService.EXPECT().Status(gomock.Any(), "req-1").Return(&models.Session{
			ID:               "req-1",
			Kind:             models.KindVerification,
			VerificationType: scope.TypeAge,
			Status:           models.StatusExpired,
		}, nil)

		rec := s.do(http.MethodGet, "/verifications/req-1", "")
		s.Equal(http.StatusOK, rec.Code)
		var body models.SessionResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Equal(models.StatusExpired, body.Status)
		s.Equal(scope.TypeAge, body.VerificationType)
	})

	s.Run("unknown session", func() {
		s.mockService.EXPECT().Status(gomock.Any(), "missing").
			Return(nil, dErrors.New(dErrors.CodeNotFound, "verification session not found"))

		rec := s.do(http.MethodGet, "/verifications/missing", "")
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("store failure is hidden", func() {
		s.mockService.EXPECT().Status(gomock.Any(), "req-2").
			Return(nil, dErrors.Wrap(errors.New("dial tcp"), dErrors.CodeInternal, "failed to access verification session"))

		rec := s.do(http.MethodGet, "/verifications/req-2", "")
		s.Equal(http.StatusInternalServerError, rec.Code)
		s.NotContains(rec.Body.String(), "dial tcp")
	})
}
