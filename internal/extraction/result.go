package extraction

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"dme-backend/internal/documents"
)

const fallbackNote = "Used fallback parsing method"

// Result is the JSON object the prompt asks the model for.
type Result struct {
	PatientFirstName string `json:"patient_first_name"`
	PatientLastName  string `json:"patient_last_name"`
	PatientDOB       string `json:"patient_dob"`
	Confidence       string `json:"confidence"`
	Notes            string `json:"notes,omitempty"`
}

var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

// parseResult turns raw model output into a normalized Result. It never
// fails: strict JSON first, then the first {...} block buried in prose, then
// an all-placeholder fallback.
func parseResult(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if r, ok := decodeCandidate([]byte(trimmed)); ok {
		return normalizeResult(r)
	}
	if block := jsonBlockRe.FindString(trimmed); block != "" {
		if r, ok := decodeCandidate([]byte(block)); ok {
			return normalizeResult(r)
		}
	}
	return fallbackResult()
}

func decodeCandidate(data []byte) (Result, bool) {
	if err := validateResultJSON(data); err != nil {
		return Result{}, false
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, false
	}
	return r, true
}

func fallbackResult() Result {
	return Result{
		PatientFirstName: documents.NotFoundPlaceholder,
		PatientLastName:  documents.NotFoundPlaceholder,
		PatientDOB:       documents.NotFoundPlaceholder,
		Confidence:       "low",
		Notes:            fallbackNote,
	}
}

// normalizeResult makes every field explicit: blank patient fields become the
// placeholder, confidence collapses to high/medium/low, the DOB is reshaped
// to YYYY-MM-DD where a known format matches.
func normalizeResult(r Result) Result {
	r.PatientFirstName = normalizeField(r.PatientFirstName)
	r.PatientLastName = normalizeField(r.PatientLastName)
	r.PatientDOB = normalizeField(r.PatientDOB)
	if isFound(r.PatientDOB) {
		r.PatientDOB = normalizeDOB(r.PatientDOB)
	}
	r.Confidence = normalizeConfidence(r.Confidence)
	r.Notes = strings.TrimSpace(r.Notes)
	return r
}

func normalizeField(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, documents.NotFoundPlaceholder) {
		return documents.NotFoundPlaceholder
	}
	return value
}

func normalizeConfidence(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return "high"
	case "medium":
		return "medium"
	default:
		return "low"
	}
}

func isFound(value string) bool {
	return value != "" && value != documents.NotFoundPlaceholder
}

// completeness counts the patient fields the result actually found.
func completeness(r Result) int {
	found := 0
	if isFound(r.PatientFirstName) {
		found++
	}
	if isFound(r.PatientLastName) {
		found++
	}
	if isFound(r.PatientDOB) {
		found++
	}
	return found
}

func confidenceRank(confidence string) int {
	switch confidence {
	case "high":
		return 3
	case "medium":
		return 2
	default:
		return 1
	}
}

var dobLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"01/02/06",
	"1/2/06",
}

// normalizeDOB reshapes common date-of-birth spellings to YYYY-MM-DD. Values
// that match no known layout pass through untouched.
func normalizeDOB(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimSuffix(cleaned, ".")
	for _, layout := range dobLayouts {
		t, err := time.Parse(layout, cleaned)
		if err != nil {
			continue
		}
		// Go reads two-digit years below 69 as 20xx; a DOB in the
		// future means the century is wrong.
		if t.Year() > time.Now().Year() {
			t = t.AddDate(-100, 0, 0)
		}
		return t.Format("2006-01-02")
	}
	return cleaned
}
