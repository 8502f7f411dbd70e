// Package persist writes a parsed lab report into the relational store.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"labflow/internal/models"
	"labflow/internal/parser"
	"labflow/internal/util"
)

type PatientStore interface {
	FindPatient(ctx context.Context, userID, name string) (*models.Patient, error)
	CreatePatient(ctx context.Context, p models.Patient) (models.Patient, error)
}

type ReportStore interface {
	InsertLabReport(ctx context.Context, rep models.LabReport) (models.LabReport, error)
	InsertTestResult(ctx context.Context, t models.TestResult) error
}

type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, s models.ParsedDocumentSnapshot) error
}

type SaveInput struct {
	Report        models.ParsedMedicalReport
	Provider      string
	Model         string
	AttemptNumber int
	Validation    models.ValidationResult
	Truncated     bool
	TextLength    int
}

type SaveResult struct {
	Patient   *models.Patient
	LabReport models.LabReport
	TestCount int
	// ItemErrors holds the per-test and snapshot failures that did not abort the save.
	ItemErrors error
}

type Writer struct {
	patients  PatientStore
	reports   ReportStore
	snapshots SnapshotStore
	logger    *slog.Logger
}

func NewWriter(patients PatientStore, reports ReportStore, snapshots SnapshotStore, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{patients: patients, reports: reports, snapshots: snapshots, logger: logger}
}

// Save stores one parsed report. Only a failed lab report insert fails the call;
// patient, test and snapshot problems are logged and the save carries on.
func (w *Writer) Save(ctx context.Context, job models.FileJob, in SaveInput) (SaveResult, error) {
	log := w.logger.With("file_id", job.FileID, "session_id", job.SessionID)
	var res SaveResult

	patient, err := w.resolvePatient(ctx, job.UserID, in.Report.Patient)
	if err != nil {
		log.Warn("patient lookup failed, saving report without patient", "error", err)
	}
	res.Patient = patient

	rep := models.LabReport{
		UserID:     job.UserID,
		SessionID:  job.SessionID,
		FileID:     job.FileID,
		LabName:    strings.TrimSpace(in.Report.LabDetails.LabName),
		Doctor:     strings.TrimSpace(in.Report.LabDetails.Doctor),
		ReportID:   strings.TrimSpace(in.Report.LabDetails.ReportID),
		ReportDate: NormalizeDate(in.Report.LabDetails.ReportDate),
		TestDate:   NormalizeDate(in.Report.LabDetails.TestDate),
	}
	if patient != nil {
		id := patient.ID
		rep.PatientID = &id
	}
	rep, err = w.reports.InsertLabReport(ctx, rep)
	if err != nil {
		return res, fmt.Errorf("%w: %v", util.ErrPersistenceFailed, err)
	}
	res.LabReport = rep

	metrics, results := parser.Flatten(in.Report)
	var itemErrs []error
	for _, t := range results {
		t.LabReportID = rep.ID
		if err := w.reports.InsertTestResult(ctx, t); err != nil {
			log.Warn("test result insert failed", "test_name", t.TestName, "error", err)
			itemErrs = append(itemErrs, err)
			continue
		}
		res.TestCount++
	}

	if err := w.saveSnapshot(ctx, job, rep.ID, metrics, in); err != nil {
		log.Warn("parsed document snapshot failed", "error", err)
		itemErrs = append(itemErrs, err)
	}
	res.ItemErrors = errors.Join(itemErrs...)

	log.Info("lab report saved", "lab_report_id", rep.ID, "tests", res.TestCount, "of", len(results))
	return res, nil
}

// resolvePatient returns nil without error when the report names nobody.
func (w *Writer) resolvePatient(ctx context.Context, userID string, info models.PatientInfo) (*models.Patient, error) {
	name := strings.TrimSpace(info.Name)
	if name == "" {
		return nil, nil
	}
	existing, err := w.patients.FindPatient(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	p, err := w.patients.CreatePatient(ctx, models.Patient{
		UserID:  userID,
		Name:    name,
		Age:     strings.TrimSpace(info.Age),
		Gender:  strings.TrimSpace(info.Gender),
		Contact: strings.TrimSpace(info.Contact),
		Address: strings.TrimSpace(info.Address),
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (w *Writer) saveSnapshot(ctx context.Context, job models.FileJob, reportID string, metrics []models.KeyMetric, in SaveInput) error {
	data, err := json.Marshal(in.Report)
	if err != nil {
		return fmt.Errorf("encode structured data: %w", err)
	}
	km, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("encode key metrics: %w", err)
	}
	id := reportID
	return w.snapshots.InsertSnapshot(ctx, models.ParsedDocumentSnapshot{
		FileID:           job.FileID,
		SessionID:        job.SessionID,
		UserID:           job.UserID,
		LabReportID:      &id,
		StructuredData:   data,
		KeyMetrics:       km,
		Provider:         in.Provider,
		Model:            in.Model,
		AttemptNumber:    in.AttemptNumber,
		ValidationIssues: in.Validation.Issues,
		Truncated:        in.Truncated,
		TextLength:       in.TextLength,
	})
}
