package parser

import (
	"fmt"
	"strings"

	"labflow/internal/models"
)

var placeholderNames = []string{"john doe", "jane doe", "patient name", "sample", "test patient", "unknown"}

var placeholderValues = map[string]bool{"": true, "n/a": true, "xx": true}

// Validate applies the plausibility rules. A failed validation is advisory; callers
// decide whether to escalate or keep the data.
func Validate(r models.ParsedMedicalReport) models.ValidationResult {
	issues := make([]string, 0)

	name := strings.ToLower(strings.TrimSpace(r.Patient.Name))
	if name == "" {
		issues = append(issues, "patient name is missing")
	} else {
		for _, p := range placeholderNames {
			if strings.Contains(name, p) {
				issues = append(issues, fmt.Sprintf("patient name %q looks like a placeholder", r.Patient.Name))
				break
			}
		}
	}

	if r.TestCount() == 0 {
		issues = append(issues, "no test results found")
	}
	for _, panel := range r.Panels {
		for i, t := range panel.Tests {
			label := t.TestName
			if strings.TrimSpace(label) == "" {
				label = fmt.Sprintf("%s #%d", panel.PanelName, i+1)
			}
			if placeholderValues[strings.ToLower(strings.TrimSpace(t.Value.String()))] {
				issues = append(issues, fmt.Sprintf("test %q has placeholder value %q", label, t.Value))
			}
			tn := strings.ToLower(t.TestName)
			if strings.Contains(tn, "sample") || strings.Contains(tn, "test name") {
				issues = append(issues, fmt.Sprintf("test name %q looks like a placeholder", t.TestName))
			}
		}
	}

	lab := strings.TrimSpace(r.LabDetails.LabName)
	switch {
	case lab == "":
		issues = append(issues, "lab name is missing")
	case strings.Contains(strings.ToLower(lab), "sample"):
		issues = append(issues, fmt.Sprintf("lab name %q looks like a placeholder", lab))
	}

	return models.ValidationResult{IsValid: len(issues) == 0, Issues: issues}
}
