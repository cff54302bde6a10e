package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edukita/classtrack-api/internal/aggregate"
	"github.com/edukita/classtrack-api/internal/models"
	"github.com/edukita/classtrack-api/pkg/export"
	"github.com/edukita/classtrack-api/pkg/storage"
)

type transcriptRowSource interface {
	TranscriptRows(ctx context.Context, studentID string) ([]models.TranscriptEntry, error)
}

type rosterReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	Roster(ctx context.Context, classID string) ([]models.RosterEntry, error)
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService renders report datasets from the academic ledger and
// persists the resulting files behind signed download URLs.
type ExportService struct {
	profiles    profileReader
	enrollments transcriptRowSource
	classes     rosterReader
	grades      gradeLedgerReader
	attendance  attendanceLedgerReader
	storage     reportStorage
	csv         csvRenderer
	pdf         pdfRenderer
	signer      *storage.Signer
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(profiles profileReader, enrollments transcriptRowSource, classes rosterReader, grades gradeLedgerReader, attendance attendanceLedgerReader, store reportStorage, signer *storage.Signer, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		profiles:    profiles,
		enrollments: enrollments,
		classes:     classes,
		grades:      grades,
		attendance:  attendance,
		storage:     store,
		csv:         csv,
		pdf:         pdf,
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
	}
}

// Generate builds the dataset for a report, renders it in the requested
// format and stores the file.
func (s *ExportService) Generate(ctx context.Context, report *models.Report) (*ExportResult, error) {
	if report == nil {
		return nil, fmt.Errorf("report nil")
	}
	dataset, err := s.buildDataset(ctx, report)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch report.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset)
	default:
		err = fmt.Errorf("unsupported format %s", report.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(report), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Sign(report.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	signedURL := fmt.Sprintf("%s/export/%s", prefix, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       report.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// VerifyToken validates download token metadata.
func (s *ExportService) VerifyToken(token string, allowExpired bool) (reportID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Verify(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored report file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to the configured
// ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildDataset(ctx context.Context, report *models.Report) (export.Dataset, error) {
	switch report.ReportType {
	case models.ReportTypeTranscript:
		return s.buildTranscriptDataset(ctx, report.Params)
	case models.ReportTypeClassGrades:
		return s.buildClassGradesDataset(ctx, report.Params)
	case models.ReportTypeAttendance:
		return s.buildClassAttendanceDataset(ctx, report.Params)
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report type %s", report.ReportType)
	}
}

func (s *ExportService) buildTranscriptDataset(ctx context.Context, params models.ReportParams) (export.Dataset, error) {
	studentID := deref(params.StudentID)
	if studentID == "" {
		return export.Dataset{}, fmt.Errorf("transcript report requires a studentId")
	}
	student, err := s.profiles.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return export.Dataset{}, fmt.Errorf("student %s not found", studentID)
		}
		return export.Dataset{}, err
	}

	entries, err := s.enrollments.TranscriptRows(ctx, studentID)
	if err != nil {
		return export.Dataset{}, err
	}
	entries = filterEntriesByTerm(entries, params)

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.EnrollmentID)
	}
	gradesByEnrollment, err := s.grades.ListByEnrollmentIDs(ctx, ids)
	if err != nil {
		return export.Dataset{}, err
	}
	attendanceByEnrollment, err := s.attendance.ListByEnrollmentIDs(ctx, ids)
	if err != nil {
		return export.Dataset{}, err
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.ClassName,
			entry.ClassCode,
			strconv.Itoa(entry.Credits),
			strconv.Itoa(entry.AcademicYear),
			string(entry.Semester),
			formatScore(aggregate.WeightedAverage(gradesByEnrollment[entry.EnrollmentID])),
			formatScore(aggregate.AttendanceRate(attendanceByEnrollment[entry.EnrollmentID])),
		})
	}

	return export.Dataset{
		Title:   fmt.Sprintf("Transcript - %s", student.FullName()),
		Headers: []string{"Class", "Code", "Credits", "Year", "Semester", "Weighted Average", "Attendance (%)"},
		Rows:    rows,
	}, nil
}

func (s *ExportService) buildClassGradesDataset(ctx context.Context, params models.ReportParams) (export.Dataset, error) {
	class, roster, err := s.loadClassRoster(ctx, params)
	if err != nil {
		return export.Dataset{}, err
	}

	ids := make([]string, 0, len(roster))
	for _, entry := range roster {
		ids = append(ids, entry.EnrollmentID)
	}
	gradesByEnrollment, err := s.grades.ListByEnrollmentIDs(ctx, ids)
	if err != nil {
		return export.Dataset{}, err
	}

	rows := make([][]string, 0, len(roster))
	for _, entry := range roster {
		grades := gradesByEnrollment[entry.EnrollmentID]
		rows = append(rows, []string{
			entry.StudentName,
			entry.Email,
			strconv.Itoa(entry.AcademicYear),
			string(entry.Semester),
			strconv.Itoa(len(grades)),
			formatScore(aggregate.WeightedAverage(grades)),
		})
	}

	return export.Dataset{
		Title:   fmt.Sprintf("Grade Report - %s", class.Name),
		Headers: []string{"Student", "Email", "Year", "Semester", "Grades", "Weighted Average"},
		Rows:    rows,
	}, nil
}

func (s *ExportService) buildClassAttendanceDataset(ctx context.Context, params models.ReportParams) (export.Dataset, error) {
	class, roster, err := s.loadClassRoster(ctx, params)
	if err != nil {
		return export.Dataset{}, err
	}

	ids := make([]string, 0, len(roster))
	for _, entry := range roster {
		ids = append(ids, entry.EnrollmentID)
	}
	attendanceByEnrollment, err := s.attendance.ListByEnrollmentIDs(ctx, ids)
	if err != nil {
		return export.Dataset{}, err
	}

	rows := make([][]string, 0, len(roster))
	for _, entry := range roster {
		records := attendanceByEnrollment[entry.EnrollmentID]
		counts := aggregate.CountByStatus(records)
		rows = append(rows, []string{
			entry.StudentName,
			strconv.Itoa(entry.AcademicYear),
			string(entry.Semester),
			strconv.Itoa(counts.Present),
			strconv.Itoa(counts.Absent),
			strconv.Itoa(counts.Late),
			strconv.Itoa(counts.Excused),
			formatScore(aggregate.AttendanceRate(records)),
		})
	}

	return export.Dataset{
		Title:   fmt.Sprintf("Attendance Report - %s", class.Name),
		Headers: []string{"Student", "Year", "Semester", "Present", "Absent", "Late", "Excused", "Attendance (%)"},
		Rows:    rows,
	}, nil
}

func (s *ExportService) loadClassRoster(ctx context.Context, params models.ReportParams) (*models.Class, []models.RosterEntry, error) {
	classID := deref(params.ClassID)
	if classID == "" {
		return nil, nil, fmt.Errorf("class report requires a classId")
	}
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("class %s not found", classID)
		}
		return nil, nil, err
	}
	roster, err := s.classes.Roster(ctx, classID)
	if err != nil {
		return nil, nil, err
	}
	return class, filterRosterByTerm(roster, params), nil
}

func (s *ExportService) buildFilename(report *models.Report) string {
	scope := deref(report.Params.StudentID)
	if scope == "" {
		scope = deref(report.Params.ClassID)
	}
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", report.ReportType, sanitizeFilename(scope), timestamp, report.Params.Format)
}

func filterEntriesByTerm(entries []models.TranscriptEntry, params models.ReportParams) []models.TranscriptEntry {
	if params.AcademicYear == nil && params.Semester == nil {
		return entries
	}
	filtered := entries[:0]
	for _, entry := range entries {
		if params.AcademicYear != nil && entry.AcademicYear != *params.AcademicYear {
			continue
		}
		if params.Semester != nil && entry.Semester != *params.Semester {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

func filterRosterByTerm(roster []models.RosterEntry, params models.ReportParams) []models.RosterEntry {
	if params.AcademicYear == nil && params.Semester == nil {
		return roster
	}
	filtered := roster[:0]
	for _, entry := range roster {
		if params.AcademicYear != nil && entry.AcademicYear != *params.AcademicYear {
			continue
		}
		if params.Semester != nil && entry.Semester != *params.Semester {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func formatScore(v float64) string {
	return strconv.FormatFloat(aggregate.Round2(v), 'f', 2, 64)
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
