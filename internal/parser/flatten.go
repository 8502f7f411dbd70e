package parser

import (
	"strings"

	"labflow/internal/models"
)

// Flatten turns panels into one KeyMetric and one TestResult per test, in order.
// Missing statuses are derived with CalculateStatus. LabReportID is left for the caller.
func Flatten(r models.ParsedMedicalReport) ([]models.KeyMetric, []models.TestResult) {
	n := r.TestCount()
	metrics := make([]models.KeyMetric, 0, n)
	results := make([]models.TestResult, 0, n)
	for _, panel := range r.Panels {
		for _, t := range panel.Tests {
			lo, hi := t.RangeMin.Ptr(), t.RangeMax.Ptr()
			value := strings.TrimSpace(t.Value.String())
			status := NormalizeStatus(t.Status)
			if status == "" {
				status = CalculateStatus(value, lo, hi, t.RangeText)
			}
			metrics = append(metrics, models.KeyMetric{
				Name:     t.TestName,
				Value:    value,
				Unit:     t.Unit,
				Status:   status,
				Panel:    panel.PanelName,
				Category: t.Category,
			})
			results = append(results, models.TestResult{
				PanelName: panel.PanelName,
				TestName:  t.TestName,
				Value:     value,
				Unit:      t.Unit,
				RangeMin:  lo,
				RangeMax:  hi,
				RangeText: t.RangeText,
				Status:    status,
				Category:  t.Category,
				Flagged:   Flagged(status),
			})
		}
	}
	return metrics, results
}
