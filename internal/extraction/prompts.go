package extraction

const extractionSystemPrompt = `You are a meticulous medical document transcriber for laboratory reports.`

const extractionPrompt = `Extract ALL text from this lab report exactly as it appears.

Preserve:
- Patient information (name, age, gender, contact, address)
- Lab information (lab name, referring doctor, report id, report date, sample/test date)
- EVERY test with its value, unit and reference range exactly as printed
- Panel / section headings

Rules:
- Do not summarize, interpret or correct values.
- Keep one test per line where possible, e.g. "Hemoglobin 11.9 g/dL (12-16)".
- If a region is unreadable write [unreadable] instead of guessing.
- Output plain text only.`
