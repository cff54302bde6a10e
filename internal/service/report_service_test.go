package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/dto"
	"github.com/edukita/classtrack-api/internal/models"
	"github.com/edukita/classtrack-api/internal/repository"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
	"github.com/edukita/classtrack-api/pkg/jobs"
)

type reportStoreStub struct {
	reports map[string]*models.Report
	seq     int
}

func newReportStoreStub() *reportStoreStub {
	return &reportStoreStub{reports: make(map[string]*models.Report)}
}

func (m *reportStoreStub) Create(_ context.Context, report *models.Report) error {
	if report.ID == "" {
		m.seq++
		report.ID = fmt.Sprintf("report-%d", m.seq)
	}
	if report.Status == "" {
		report.Status = models.ReportStatusQueued
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	clone := *report
	m.reports[report.ID] = &clone
	return nil
}

func (m *reportStoreStub) FindByID(_ context.Context, id string) (*models.Report, error) {
	if report, ok := m.reports[id]; ok {
		clone := *report
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *reportStoreStub) ListByGenerator(_ context.Context, generatedBy string, _ int) ([]models.Report, error) {
	out := make([]models.Report, 0)
	for _, report := range m.reports {
		if report.GeneratedBy == generatedBy {
			out = append(out, *report)
		}
	}
	return out, nil
}

func (m *reportStoreStub) Update(_ context.Context, id string, params repository.UpdateReportParams) error {
	report, ok := m.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		report.Status = *params.Status
	}
	if params.FileURL != nil {
		url := *params.FileURL
		report.FileURL = &url
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		report.ErrorMessage = &msg
	}
	if params.GeneratedAt != nil {
		at := *params.GeneratedAt
		report.GeneratedAt = &at
	}
	return nil
}

func (m *reportStoreStub) ListQueued(_ context.Context, _ int) ([]models.Report, error) {
	out := make([]models.Report, 0)
	for _, report := range m.reports {
		if report.Status == models.ReportStatusQueued {
			out = append(out, *report)
		}
	}
	return out, nil
}

func (m *reportStoreStub) ListFinishedBefore(_ context.Context, cutoff time.Time, _ int) ([]models.Report, error) {
	out := make([]models.Report, 0)
	for _, report := range m.reports {
		if report.Status == models.ReportStatusFinished && report.GeneratedAt != nil && report.GeneratedAt.Before(cutoff) {
			out = append(out, *report)
		}
	}
	return out, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type exportStub struct {
	result *ExportResult
	err    error
	calls  int
}

func (e *exportStub) Generate(_ context.Context, _ *models.Report) (*ExportResult, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func newReportServiceForTest(t *testing.T) (*ReportService, *reportStoreStub, *queueStub, *ExportService) {
	t.Helper()
	repo := newReportStoreStub()
	queue := &queueStub{}
	exporter, _ := newExportServiceForTest(t)
	svc := NewReportService(repo, &stubAuthorizer{}, queue, exporter, zap.NewNop(), ReportServiceConfig{ResultTTL: time.Hour})
	return svc, repo, queue, exporter
}

func TestReportServiceCreateQueuesJob(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	studentID := "s1"

	resp, err := svc.Create(context.Background(), authz.Actor{ID: "t1", Role: models.RoleTeacher}, dto.CreateReportRequest{
		Type:      models.ReportTypeTranscript,
		Format:    models.ReportFormatCSV,
		StudentID: &studentID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)

	stored, err := repo.FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "t1", stored.GeneratedBy)
	require.NotNil(t, stored.Params.StudentID)
	assert.Equal(t, "s1", *stored.Params.StudentID)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, resp.ID, queue.jobs[0].ID)
	assert.Equal(t, string(models.ReportTypeTranscript), queue.jobs[0].Kind)
}

func TestReportServiceCreateValidatesRequest(t *testing.T) {
	svc, _, queue, _ := newReportServiceForTest(t)
	actor := authz.Actor{ID: "t1", Role: models.RoleTeacher}
	studentID := "s1"
	badSemester := models.Semester("Winter")
	badYear := 0

	cases := []struct {
		name string
		req  dto.CreateReportRequest
	}{
		{"missing student for transcript", dto.CreateReportRequest{Type: models.ReportTypeTranscript, Format: models.ReportFormatCSV}},
		{"missing class for grades", dto.CreateReportRequest{Type: models.ReportTypeClassGrades, Format: models.ReportFormatCSV}},
		{"missing class for attendance", dto.CreateReportRequest{Type: models.ReportTypeAttendance, Format: models.ReportFormatPDF}},
		{"unknown type", dto.CreateReportRequest{Type: "yearbook", Format: models.ReportFormatCSV, StudentID: &studentID}},
		{"unknown format", dto.CreateReportRequest{Type: models.ReportTypeTranscript, Format: "xlsx", StudentID: &studentID}},
		{"invalid semester", dto.CreateReportRequest{Type: models.ReportTypeTranscript, Format: models.ReportFormatCSV, StudentID: &studentID, Semester: &badSemester}},
		{"invalid year", dto.CreateReportRequest{Type: models.ReportTypeTranscript, Format: models.ReportFormatCSV, StudentID: &studentID, AcademicYear: &badYear}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), actor, tc.req)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
	assert.Empty(t, queue.jobs)
}

func TestReportServiceCreateDenied(t *testing.T) {
	repo := newReportStoreStub()
	queue := &queueStub{}
	exporter, _ := newExportServiceForTest(t)
	svc := NewReportService(repo, &stubAuthorizer{err: appErrors.ErrForbidden}, queue, exporter, zap.NewNop(), ReportServiceConfig{})
	studentID := "s1"

	_, err := svc.Create(context.Background(), authz.Actor{ID: "s2", Role: models.RoleStudent}, dto.CreateReportRequest{
		Type:      models.ReportTypeTranscript,
		Format:    models.ReportFormatCSV,
		StudentID: &studentID,
	})
	assert.Equal(t, appErrors.ErrForbidden, err)
	assert.Empty(t, repo.reports)
	assert.Empty(t, queue.jobs)
}

func TestReportServiceCreateEnqueueFailureMarksFailed(t *testing.T) {
	repo := newReportStoreStub()
	queue := &queueStub{err: errors.New("queue full")}
	exporter, _ := newExportServiceForTest(t)
	svc := NewReportService(repo, &stubAuthorizer{}, queue, exporter, zap.NewNop(), ReportServiceConfig{})
	studentID := "s1"

	_, err := svc.Create(context.Background(), authz.Actor{ID: "t1", Role: models.RoleTeacher}, dto.CreateReportRequest{
		Type:      models.ReportTypeTranscript,
		Format:    models.ReportFormatCSV,
		StudentID: &studentID,
	})
	require.Error(t, err)

	require.Len(t, repo.reports, 1)
	for _, report := range repo.reports {
		assert.Equal(t, models.ReportStatusFailed, report.Status)
		require.NotNil(t, report.ErrorMessage)
		assert.NotEmpty(t, *report.ErrorMessage)
	}
}

func TestReportServiceGet(t *testing.T) {
	svc, repo, _, _ := newReportServiceForTest(t)

	_, err := svc.Get(context.Background(), authz.Actor{ID: "t1", Role: models.RoleTeacher}, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	report := &models.Report{GeneratedBy: "t1", ReportType: models.ReportTypeTranscript, Params: models.ReportParams{Format: models.ReportFormatCSV}}
	require.NoError(t, repo.Create(context.Background(), report))

	resp, err := svc.Get(context.Background(), authz.Actor{ID: "t1", Role: models.RoleTeacher}, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, resp.ID)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	assert.Nil(t, resp.FileURL)
}

func TestReportServiceListReturnsOwnReports(t *testing.T) {
	svc, repo, _, _ := newReportServiceForTest(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Report{GeneratedBy: "t1", ReportType: models.ReportTypeTranscript}))
	require.NoError(t, repo.Create(ctx, &models.Report{GeneratedBy: "t1", ReportType: models.ReportTypeAttendance}))
	require.NoError(t, repo.Create(ctx, &models.Report{GeneratedBy: "t2", ReportType: models.ReportTypeClassGrades}))

	reports, err := svc.List(ctx, authz.Actor{ID: "t1", Role: models.RoleTeacher}, 20)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

func TestReportWorkerFinishesReport(t *testing.T) {
	svc, repo, _, exporter := newReportServiceForTest(t)
	ctx := context.Background()
	studentID := "s1"
	report := &models.Report{
		GeneratedBy: "t1",
		ReportType:  models.ReportTypeTranscript,
		Params:      models.ReportParams{StudentID: &studentID, Format: models.ReportFormatCSV},
	}
	require.NoError(t, repo.Create(ctx, report))

	worker := NewReportWorker(repo, exporter, nil, 3, zap.NewNop())
	require.NoError(t, worker.Handle(ctx, jobs.Job{ID: report.ID, Kind: string(report.ReportType), Attempt: 1}))

	stored, err := repo.FindByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, stored.Status)
	require.NotNil(t, stored.FileURL)
	assert.Contains(t, *stored.FileURL, "/export/")
	require.NotNil(t, stored.GeneratedAt)

	// the signed URL resolves back to the stored file
	download, err := svc.ResolveDownload(ctx, path.Base(*stored.FileURL))
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, models.ReportFormatCSV, download.Format)
	assert.NotEmpty(t, download.Filename)
}

func TestReportWorkerRequeuesBelowAttemptBudget(t *testing.T) {
	repo := newReportStoreStub()
	ctx := context.Background()
	report := &models.Report{GeneratedBy: "t1", ReportType: models.ReportTypeTranscript}
	require.NoError(t, repo.Create(ctx, report))

	exporter := &exportStub{err: errors.New("render blew up")}
	worker := NewReportWorker(repo, exporter, nil, 3, zap.NewNop())

	err := worker.Handle(ctx, jobs.Job{ID: report.ID, Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, 1, exporter.calls)

	stored, findErr := repo.FindByID(ctx, report.ID)
	require.NoError(t, findErr)
	assert.Equal(t, models.ReportStatusQueued, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "render blew up", *stored.ErrorMessage)
	assert.Nil(t, stored.GeneratedAt)
}

func TestReportWorkerFailsAfterAttemptBudget(t *testing.T) {
	repo := newReportStoreStub()
	ctx := context.Background()
	report := &models.Report{GeneratedBy: "t1", ReportType: models.ReportTypeTranscript}
	require.NoError(t, repo.Create(ctx, report))

	exporter := &exportStub{err: errors.New("render blew up")}
	worker := NewReportWorker(repo, exporter, nil, 3, zap.NewNop())

	err := worker.Handle(ctx, jobs.Job{ID: report.ID, Attempt: 3})
	require.Error(t, err)

	stored, findErr := repo.FindByID(ctx, report.ID)
	require.NoError(t, findErr)
	assert.Equal(t, models.ReportStatusFailed, stored.Status)
	require.NotNil(t, stored.GeneratedAt)
}

func TestReportServiceDownloadRejectsBadTokens(t *testing.T) {
	svc, repo, _, exporter := newReportServiceForTest(t)
	ctx := context.Background()
	studentID := "s1"
	report := &models.Report{
		GeneratedBy: "t1",
		ReportType:  models.ReportTypeTranscript,
		Params:      models.ReportParams{StudentID: &studentID, Format: models.ReportFormatCSV},
	}
	require.NoError(t, repo.Create(ctx, report))

	worker := NewReportWorker(repo, exporter, nil, 3, zap.NewNop())
	require.NoError(t, worker.Handle(ctx, jobs.Job{ID: report.ID, Attempt: 1}))
	stored, err := repo.FindByID(ctx, report.ID)
	require.NoError(t, err)
	token := path.Base(*stored.FileURL)

	_, err = svc.ResolveDownload(ctx, "not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// token no longer matching the stored URL is refused
	rewritten := "/api/v1/export/someone-elses-token"
	require.NoError(t, repo.Update(ctx, report.ID, repository.UpdateReportParams{FileURL: &rewritten}))
	_, err = svc.ResolveDownload(ctx, token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// a report knocked back to QUEUED is not downloadable
	require.NoError(t, repo.Update(ctx, report.ID, repository.UpdateReportParams{FileURL: stored.FileURL}))
	queued := models.ReportStatusQueued
	require.NoError(t, repo.Update(ctx, report.ID, repository.UpdateReportParams{Status: &queued}))
	_, err = svc.ResolveDownload(ctx, token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReportServiceRecoverPendingJobs(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Report{GeneratedBy: "t1", ReportType: models.ReportTypeTranscript}))
	require.NoError(t, repo.Create(ctx, &models.Report{GeneratedBy: "t2", ReportType: models.ReportTypeAttendance}))
	finished := &models.Report{GeneratedBy: "t3", ReportType: models.ReportTypeClassGrades, Status: models.ReportStatusFinished}
	require.NoError(t, repo.Create(ctx, finished))

	svc.RecoverPendingJobs(ctx)
	assert.Len(t, queue.jobs, 2)
}
