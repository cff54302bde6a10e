package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/dto"
	"github.com/edukita/classtrack-api/internal/models"
	"github.com/edukita/classtrack-api/internal/repository"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
	"github.com/edukita/classtrack-api/pkg/jobs"
)

type reportStore interface {
	Create(ctx context.Context, report *models.Report) error
	FindByID(ctx context.Context, id string) (*models.Report, error)
	ListByGenerator(ctx context.Context, generatedBy string, limit int) ([]models.Report, error)
	Update(ctx context.Context, id string, params repository.UpdateReportParams) error
	ListQueued(ctx context.Context, limit int) ([]models.Report, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Report, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, report *models.Report) (*ExportResult, error)
}

// ReportServiceConfig governs queue recovery and file cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ReportService orchestrates the asynchronous report lifecycle: queueing,
// status reads and signed downloads. Who may request which scope is the
// policy engine's call; admins reach everything, teachers their own
// classes and students, students their own transcript.
type ReportService struct {
	repo     reportStore
	engine   authorizer
	queue    jobDispatcher
	exporter *ExportService
	logger   *zap.Logger
	cfg      ReportServiceConfig
}

// NewReportService constructs the report service.
func NewReportService(repo reportStore, engine authorizer, queue jobDispatcher, exporter *ExportService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{
		repo:     repo,
		engine:   engine,
		queue:    queue,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
	}
}

// Create validates the request, persists the report row and enqueues
// generation.
func (s *ReportService) Create(ctx context.Context, actor authz.Actor, req dto.CreateReportRequest) (*dto.ReportQueuedResponse, error) {
	if err := validateReportRequest(req); err != nil {
		return nil, err
	}

	if err := s.engine.Authorize(ctx, actor, authz.ActionInsert, authz.ReportCreation(deref(req.StudentID), deref(req.ClassID))); err != nil {
		return nil, err
	}

	report := &models.Report{
		GeneratedBy: actor.ID,
		ReportType:  req.Type,
		Params: models.ReportParams{
			StudentID:    req.StudentID,
			ClassID:      req.ClassID,
			AcademicYear: req.AcademicYear,
			Semester:     req.Semester,
			Format:       req.Format,
		},
	}
	if err := s.repo.Create(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: report.ID, Kind: string(report.ReportType)}); err != nil {
		failed := models.ReportStatusFailed
		msg := "failed to enqueue report"
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, report.ID, repository.UpdateReportParams{
			Status:       &failed,
			ErrorMessage: &msg,
			GeneratedAt:  &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report")
	}

	return &dto.ReportQueuedResponse{ID: report.ID, Status: report.Status}, nil
}

// Get exposes report metadata to its creator or an admin.
func (s *ReportService) Get(ctx context.Context, actor authz.Actor, id string) (*dto.ReportStatusResponse, error) {
	report, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	if err := s.engine.Authorize(ctx, actor, authz.ActionSelect, authz.ReportResource(report.GeneratedBy)); err != nil {
		return nil, err
	}
	return toStatusResponse(report), nil
}

// List returns the caller's most recent reports.
func (s *ReportService) List(ctx context.Context, actor authz.Actor, limit int) ([]dto.ReportStatusResponse, error) {
	reports, err := s.repo.ListByGenerator(ctx, actor.ID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	out := make([]dto.ReportStatusResponse, 0, len(reports))
	for i := range reports {
		out = append(out, *toStatusResponse(&reports[i]))
	}
	return out, nil
}

// ResolveDownload validates a signed token and opens the stored file.
// The token is the sole credential here; downloads carry no session.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	reportID, relPath, expiresAt, err := s.exporter.VerifyToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	report, err := s.repo.FindByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	if report.FileURL == nil || !strings.HasSuffix(*report.FileURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if report.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    report.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued reports after a process restart.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued reports", "error", err)
		return
	}
	for _, report := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: report.ID, Kind: string(report.ReportType)}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue report", "report_id", report.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired report files.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ReportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	for {
		reports, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			s.logger.Sugar().Warnw("report cleanup list failed", "error", err)
			return
		}
		if len(reports) == 0 {
			break
		}
		for _, report := range reports {
			if report.FileURL == nil {
				continue
			}
			token := lastPathSegment(*report.FileURL)
			if token == "" {
				continue
			}
			_, relPath, _, err := s.exporter.VerifyToken(token, true)
			if err != nil {
				continue
			}
			if err := s.exporter.Delete(relPath); err != nil {
				s.logger.Sugar().Warnw("report cleanup delete failed", "report_id", report.ID, "error", err)
			}
		}
		if len(reports) < 100 {
			break
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("report filesystem cleanup failed", "error", err)
	}
}

func validateReportRequest(req dto.CreateReportRequest) error {
	if !req.Type.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}
	if !req.Format.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	if req.Semester != nil && !req.Semester.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "semester must be Fall or Spring")
	}
	if req.AcademicYear != nil && *req.AcademicYear <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "academicYear must be positive")
	}
	switch req.Type {
	case models.ReportTypeTranscript:
		if deref(req.StudentID) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "transcript reports require a studentId")
		}
	case models.ReportTypeClassGrades, models.ReportTypeAttendance:
		if deref(req.ClassID) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "class reports require a classId")
		}
	}
	return nil
}

func toStatusResponse(report *models.Report) *dto.ReportStatusResponse {
	resp := &dto.ReportStatusResponse{
		ID:        report.ID,
		Type:      report.ReportType,
		Status:    report.Status,
		CreatedAt: report.CreatedAt,
	}
	if report.FileURL != nil {
		resp.FileURL = report.FileURL
	}
	if report.ErrorMessage != nil && *report.ErrorMessage != "" {
		resp.Error = report.ErrorMessage
	}
	if report.GeneratedAt != nil {
		resp.GeneratedAt = report.GeneratedAt
	}
	return resp
}

func lastPathSegment(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// ReportWorker bridges queue jobs to the exporter and drives the status
// state machine: QUEUED to PROCESSING, then FINISHED or, once the
// attempt budget is spent, FAILED.
type ReportWorker struct {
	repo       reportStore
	exporter   exportGenerator
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportStore, exporter exportGenerator, metrics *MetricsService, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReportWorker{
		repo:       repo,
		exporter:   exporter,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes one queued report.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	report, err := w.repo.FindByID(ctx, job.ID)
	if err != nil {
		return err
	}

	processing := models.ReportStatusProcessing
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportParams{Status: &processing}); err != nil {
		return err
	}

	start := time.Now()
	result, err := w.exporter.Generate(ctx, report)
	if w.metrics != nil {
		w.metrics.ObserveReportGeneration(time.Since(start))
	}
	if err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			failed := models.ReportStatusFailed
			now := time.Now().UTC()
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateReportParams{
				Status:       &failed,
				ErrorMessage: &msg,
				GeneratedAt:  &now,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark report failed", "report_id", job.ID, "error", updateErr)
			}
			if w.metrics != nil {
				w.metrics.RecordReportJob(string(report.ReportType), string(models.ReportStatusFailed))
			}
		} else {
			queued := models.ReportStatusQueued
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateReportParams{
				Status:       &queued,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to requeue report", "report_id", job.ID, "error", updateErr)
			}
		}
		return err
	}

	finished := models.ReportStatusFinished
	now := time.Now().UTC()
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportParams{
		Status:       &finished,
		FileURL:      &result.URL,
		ErrorMessage: &clear,
		GeneratedAt:  &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark report finished", "report_id", job.ID, "error", err)
		return err
	}
	if w.metrics != nil {
		w.metrics.RecordReportJob(string(report.ReportType), string(models.ReportStatusFinished))
	}
	return nil
}
