// Package dto holds request and response shapes for the report API.
package dto

import (
	"time"

	"github.com/edukita/classtrack-api/internal/models"
)

// CreateReportRequest captures the POST /reports payload. Which scope
// fields are required depends on the report type.
type CreateReportRequest struct {
	Type         models.ReportType   `json:"type"`
	Format       models.ReportFormat `json:"format"`
	StudentID    *string             `json:"studentId,omitempty"`
	ClassID      *string             `json:"classId,omitempty"`
	AcademicYear *int                `json:"academicYear,omitempty"`
	Semester     *models.Semester    `json:"semester,omitempty"`
}

// ReportQueuedResponse is returned right after a report is enqueued.
type ReportQueuedResponse struct {
	ID     string              `json:"id"`
	Status models.ReportStatus `json:"status"`
}

// ReportStatusResponse exposes report lifecycle metadata. FileURL is
// only present once the report finished.
type ReportStatusResponse struct {
	ID          string              `json:"id"`
	Type        models.ReportType   `json:"type"`
	Status      models.ReportStatus `json:"status"`
	FileURL     *string             `json:"fileUrl,omitempty"`
	Error       *string             `json:"error,omitempty"`
	GeneratedAt *time.Time          `json:"generatedAt,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}
