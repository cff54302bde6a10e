package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/dto"
	"github.com/edukita/classtrack-api/internal/middleware"
	"github.com/edukita/classtrack-api/internal/models"
	"github.com/edukita/classtrack-api/internal/service"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
)

type fakeReportSrv struct {
	queued      *dto.ReportQueuedResponse
	createErr   error
	status      *dto.ReportStatusResponse
	statusErr   error
	download    *service.ReportDownload
	downloadErr error
}

func (f *fakeReportSrv) Create(context.Context, authz.Actor, dto.CreateReportRequest) (*dto.ReportQueuedResponse, error) {
	return f.queued, f.createErr
}

func (f *fakeReportSrv) Get(context.Context, authz.Actor, string) (*dto.ReportStatusResponse, error) {
	return f.status, f.statusErr
}

func (f *fakeReportSrv) List(context.Context, authz.Actor, int) ([]dto.ReportStatusResponse, error) {
	if f.status == nil {
		return nil, nil
	}
	return []dto.ReportStatusResponse{*f.status}, nil
}

func (f *fakeReportSrv) ResolveDownload(context.Context, string) (*service.ReportDownload, error) {
	return f.download, f.downloadErr
}

func TestReportHandlerCreateAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&fakeReportSrv{
		queued: &dto.ReportQueuedResponse{ID: "r1", Status: models.ReportStatusQueued},
	})

	studentID := "s1"
	payload, _ := json.Marshal(dto.CreateReportRequest{Type: models.ReportTypeTranscript, Format: models.ReportFormatPDF, StudentID: &studentID})
	c, w := newGinContext(http.MethodPost, "/reports", payload)
	c.Set(middleware.ContextActorKey, authz.Actor{ID: "s1", Role: models.RoleStudent})

	handler.Create(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "QUEUED", envelope.Data["status"])
}

func TestReportHandlerCreateForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&fakeReportSrv{createErr: appErrors.ErrForbidden})

	payload, _ := json.Marshal(dto.CreateReportRequest{Type: models.ReportTypeClassGrades, Format: models.ReportFormatCSV})
	c, w := newGinContext(http.MethodPost, "/reports", payload)
	c.Set(middleware.ContextActorKey, authz.Actor{ID: "s1", Role: models.RoleStudent})

	handler.Create(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReportHandlerGetStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fileURL := "/api/v1/export/tok123"
	handler := NewReportHandler(&fakeReportSrv{
		status: &dto.ReportStatusResponse{
			ID:        "r1",
			Type:      models.ReportTypeTranscript,
			Status:    models.ReportStatusFinished,
			FileURL:   &fileURL,
			CreatedAt: time.Now(),
		},
	})

	c, w := newGinContext(http.MethodGet, "/reports/r1", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	c.Set(middleware.ContextActorKey, authz.Actor{ID: "s1", Role: models.RoleStudent})

	handler.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "FINISHED", envelope.Data["status"])
	assert.Equal(t, fileURL, envelope.Data["fileUrl"])
}

func TestReportHandlerDownloadServesFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	file, err := os.CreateTemp(t.TempDir(), "report*.csv")
	require.NoError(t, err)
	_, _ = file.WriteString("Student,Average\nAna Silva,91.25\n")
	_, _ = file.Seek(0, 0)

	handler := NewReportHandler(&fakeReportSrv{
		download: &service.ReportDownload{
			File:      file,
			Filename:  "transcript_s1.csv",
			Format:    models.ReportFormatCSV,
			ExpiresAt: time.Now().Add(time.Hour),
		},
	})

	c, w := newGinContext(http.MethodGet, "/export/tok123", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok123"}}

	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "transcript_s1.csv")
	assert.Contains(t, w.Body.String(), "Ana Silva")
}

func TestReportHandlerDownloadRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&fakeReportSrv{
		downloadErr: appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or has expired"),
	})

	c, w := newGinContext(http.MethodGet, "/export/garbage", nil)
	c.Params = gin.Params{{Key: "token", Value: "garbage"}}

	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
