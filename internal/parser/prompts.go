package parser

import "fmt"

const parseSystemPrompt = `You convert laboratory report text into structured JSON. You never invent data.`

const parsePromptTemplate = `Extract the lab report below into JSON.

Return ONLY a JSON object with this schema:
{
  "patient_info": {"name": "string", "age": "string", "gender": "string", "contact": "string", "address": "string"},
  "lab_details": {"lab_name": "string", "doctor": "string", "report_id": "string", "report_date": "YYYY-MM-DD or as printed", "test_date": "YYYY-MM-DD or as printed"},
  "panels": [
    {
      "panel_name": "string",
      "tests": [
        {
          "test_name": "string",
          "value": "string",
          "unit": "string",
          "range_min": number or null,
          "range_max": number or null,
          "range_text": "reference range exactly as printed",
          "status": "NORMAL|HIGH|LOW|CRITICAL|PENDING",
          "category": "string"
        }
      ]
    }
  ]
}

Rules:
- Use only values present in the text. Never output placeholders such as "John Doe", "Sample", "N/A" or "XX".
- Leave a field empty when it is not in the text.
- Copy units exactly as printed.
- Compute status by comparing value against the reference range; use PENDING when there is no range or no numeric value.
- Group tests under the panel heading they appear under; use "General" when there is none.
- No prose, no markdown, no code fences.

Source file: %s
Attempt: %d

Report text:
"""
%s
"""`

func buildPrompt(fileName string, attempt int, text string) string {
	return fmt.Sprintf(parsePromptTemplate, fileName, attempt, text)
}
