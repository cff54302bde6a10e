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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/middleware"
	"github.com/edukita/classtrack-api/internal/models"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
)

type fakeEnrollmentSrv struct {
	enrollment *models.Enrollment
	joinErr    error
	detail     *models.EnrollmentDetail
	summary    *models.EnrollmentSummary
	summaryHit bool
	transcript *models.StudentTranscript
	lastJoin   models.JoinClassRequest
}

func (f *fakeEnrollmentSrv) JoinByCode(_ context.Context, _ authz.Actor, req models.JoinClassRequest, _ models.RequestMeta) (*models.Enrollment, error) {
	f.lastJoin = req
	return f.enrollment, f.joinErr
}

func (f *fakeEnrollmentSrv) Get(context.Context, authz.Actor, string) (*models.EnrollmentDetail, error) {
	return f.detail, nil
}

func (f *fakeEnrollmentSrv) List(context.Context, authz.Actor, models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	return nil, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (f *fakeEnrollmentSrv) Leave(context.Context, authz.Actor, string, models.RequestMeta) error {
	return nil
}

func (f *fakeEnrollmentSrv) Summary(context.Context, authz.Actor, string) (*models.EnrollmentSummary, bool, error) {
	return f.summary, f.summaryHit, nil
}

func (f *fakeEnrollmentSrv) Transcript(context.Context, authz.Actor, string) (*models.StudentTranscript, error) {
	return f.transcript, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

type responseEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Error map[string]interface{} `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func TestEnrollmentHandlerJoin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeEnrollmentSrv{
		enrollment: &models.Enrollment{ID: "e1", StudentID: "s1", ClassID: "c1", AcademicYear: 2026, Semester: models.SemesterFall},
	}
	handler := NewEnrollmentHandler(fake)

	payload, _ := json.Marshal(models.JoinClassRequest{Code: "ab12cd"})
	c, w := newGinContext(http.MethodPost, "/enrollments/join", payload)
	c.Set(middleware.ContextActorKey, authz.Actor{ID: "s1", Role: models.RoleStudent})

	handler.Join(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "ab12cd", fake.lastJoin.Code)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "c1", envelope.Data["class_id"])
}

func TestEnrollmentHandlerJoinRequiresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{})

	payload, _ := json.Marshal(models.JoinClassRequest{Code: "AB12CD"})
	c, w := newGinContext(http.MethodPost, "/enrollments/join", payload)

	handler.Join(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEnrollmentHandlerJoinRejectsBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{})

	c, w := newGinContext(http.MethodPost, "/enrollments/join", []byte("{not json"))
	c.Set(middleware.ContextActorKey, authz.Actor{ID: "s1", Role: models.RoleStudent})

	handler.Join(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHandlerJoinConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{joinErr: appErrors.ErrAlreadyEnrolled})

	payload, _ := json.Marshal(models.JoinClassRequest{Code: "AB12CD"})
	c, w := newGinContext(http.MethodPost, "/enrollments/join", payload)
	c.Set(middleware.ContextActorKey, authz.Actor{ID: "s1", Role: models.RoleStudent})

	handler.Join(c)

	require.Equal(t, http.StatusConflict, w.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "ALREADY_EXISTS", envelope.Error["code"])
}

func TestEnrollmentHandlerSummaryReportsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{
		summary: &models.EnrollmentSummary{
			EnrollmentID:    "e1",
			WeightedAverage: 87.5,
			AttendanceRate:  75,
			ComputedAt:      time.Now(),
		},
		summaryHit: true,
	})

	c, w := newGinContext(http.MethodGet, "/enrollments/e1/summary", nil)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	c.Set(middleware.ContextActorKey, authz.Actor{ID: "s1", Role: models.RoleStudent})

	handler.Summary(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["cacheHit"])
	assert.Equal(t, 87.5, envelope.Data["weighted_average"])
}

func TestEnrollmentHandlerTranscript(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{
		transcript: &models.StudentTranscript{
			StudentID:   "s1",
			StudentName: "Ana Silva",
			Entries: []models.TranscriptEntry{
				{EnrollmentID: "e1", ClassName: "Algebra I", WeightedAverage: 91.25, AttendanceRate: 100},
			},
			GeneratedAt: time.Now(),
		},
	})

	c, w := newGinContext(http.MethodGet, "/students/s1/transcript", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	c.Set(middleware.ContextActorKey, authz.Actor{ID: "s1", Role: models.RoleStudent})

	handler.Transcript(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "Ana Silva", envelope.Data["student_name"])
}
