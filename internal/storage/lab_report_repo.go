package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"labflow/internal/models"
)

type LabReportRepo struct {
	db *DB
}

func NewLabReportRepo(db *DB) *LabReportRepo {
	return &LabReportRepo{db: db}
}

// InsertLabReport always creates a new row; reports are never updated in place.
func (r *LabReportRepo) InsertLabReport(ctx context.Context, rep models.LabReport) (models.LabReport, error) {
	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO lab_reports (id, user_id, patient_id, session_id, file_id, lab_name, doctor, report_id, report_date, test_date)
VALUES ($1, $2, $3::uuid, $4, $5, NULLIF($6,''), NULLIF($7,''), NULLIF($8,''), $9, $10)
RETURNING created_at`,
		rep.ID, rep.UserID, rep.PatientID, rep.SessionID, rep.FileID, rep.LabName, rep.Doctor, rep.ReportID, rep.ReportDate, rep.TestDate).
		Scan(&rep.CreatedAt)
	if err != nil {
		return models.LabReport{}, fmt.Errorf("insert lab report: %w", err)
	}
	return rep, nil
}

func (r *LabReportRepo) InsertTestResult(ctx context.Context, t models.TestResult) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO test_results (id, lab_report_id, panel_name, test_name, value, unit, range_min, range_max, range_text, status, category, flagged)
VALUES ($1, $2, NULLIF($3,''), $4, $5, NULLIF($6,''), $7, $8, NULLIF($9,''), $10, NULLIF($11,''), $12)`,
		t.ID, t.LabReportID, t.PanelName, t.TestName, t.Value, t.Unit, t.RangeMin, t.RangeMax, t.RangeText, t.Status, t.Category, t.Flagged)
	if err != nil {
		return fmt.Errorf("insert test result %q: %w", t.TestName, err)
	}
	return nil
}

func (r *LabReportRepo) ListTestResults(ctx context.Context, labReportID string) ([]models.TestResult, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id::text, lab_report_id::text, COALESCE(panel_name,''), test_name, COALESCE(value,''), COALESCE(unit,''),
       range_min, range_max, COALESCE(range_text,''), status, COALESCE(category,''), flagged
FROM test_results
WHERE lab_report_id=$1
ORDER BY created_at, test_name`, labReportID)
	if err != nil {
		return nil, fmt.Errorf("list test results: %w", err)
	}
	defer rows.Close()

	out := make([]models.TestResult, 0)
	for rows.Next() {
		var t models.TestResult
		if err := rows.Scan(&t.ID, &t.LabReportID, &t.PanelName, &t.TestName, &t.Value, &t.Unit,
			&t.RangeMin, &t.RangeMax, &t.RangeText, &t.Status, &t.Category, &t.Flagged); err != nil {
			return nil, fmt.Errorf("scan test result: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test results: %w", err)
	}
	return out, nil
}

func (r *LabReportRepo) ListReportsByFile(ctx context.Context, fileID string) ([]models.LabReport, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id::text, user_id, patient_id::text, session_id, file_id, COALESCE(lab_name,''), COALESCE(doctor,''),
       COALESCE(report_id,''), report_date, test_date, created_at
FROM lab_reports
WHERE file_id=$1
ORDER BY created_at`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list lab reports: %w", err)
	}
	defer rows.Close()

	out := make([]models.LabReport, 0)
	for rows.Next() {
		var rep models.LabReport
		if err := rows.Scan(&rep.ID, &rep.UserID, &rep.PatientID, &rep.SessionID, &rep.FileID, &rep.LabName, &rep.Doctor,
			&rep.ReportID, &rep.ReportDate, &rep.TestDate, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lab report: %w", err)
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lab reports: %w", err)
	}
	return out, nil
}
