package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportType enumerates supported asynchronous report categories.
type ReportType string

const (
	ReportTypeTranscript  ReportType = "transcript"
	ReportTypeClassGrades ReportType = "class_grades"
	ReportTypeAttendance  ReportType = "attendance"
)

// Valid returns true when the report type is a supported value.
func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeTranscript, ReportTypeClassGrades, ReportTypeAttendance:
		return true
	default:
		return false
	}
}

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Valid returns true when the report format is a supported value.
func (f ReportFormat) Valid() bool {
	return f == ReportFormatCSV || f == ReportFormatPDF
}

// ReportStatus captures background job lifecycle states.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// Report is the persisted metadata of a background report job.
type Report struct {
	ID           string       `db:"id" json:"id"`
	GeneratedBy  string       `db:"generated_by" json:"generated_by"`
	ReportType   ReportType   `db:"report_type" json:"report_type"`
	Params       ReportParams `db:"params" json:"params"`
	Status       ReportStatus `db:"status" json:"status"`
	FileURL      *string      `db:"file_url" json:"file_url,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	GeneratedAt  *time.Time   `db:"generated_at" json:"generated_at,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

// ReportParams stores the request-scoped options persisted as JSONB.
type ReportParams struct {
	StudentID    *string      `json:"studentId,omitempty"`
	ClassID      *string      `json:"classId,omitempty"`
	AcademicYear *int         `json:"academicYear,omitempty"`
	Semester     *Semester    `json:"semester,omitempty"`
	Format       ReportFormat `json:"format"`
}

// Value marshals params to JSON for persistence.
func (p ReportParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal report params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ReportParams) Scan(value interface{}) error {
	if value == nil {
		*p = ReportParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ReportParams", value)
	}
	if len(data) == 0 {
		*p = ReportParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal report params: %w", err)
	}
	return nil
}
