package domain

import (
	"encoding/json"
	"fmt"
)

// Record keys read or written by the enrichment passes
const (
	fieldID                 = "id"
	fieldJobPostingLocation = "job_posting_location"
	fieldCoordinates        = "coordinates"
	fieldStatusEvents       = "status_events"
	fieldSalaryLow          = "salary_low"
	fieldSalaryHigh         = "salary_high"
	fieldSalaryPeriod       = "salary_period"
	fieldSalary             = "salary"
)

// Record is one job-tracker entry. Keys the pipeline does not know about are
// kept in Extra and written back unchanged. The salary input keys are only
// written when the upstream record had them or a value was set.
type Record struct {
	// ID is only used to point log lines at the upstream entry
	ID                 string
	JobPostingLocation string
	Coordinates        []LocationPoint
	// StatusEvents is nil when the upstream record has no status_events key
	StatusEvents []StatusEvent
	SalaryLow    *float64
	SalaryHigh   *float64
	// SalaryPeriod is nil when the upstream key is missing or null; see
	// HasSalaryPeriod
	SalaryPeriod *int
	Salary       *float64

	Extra map[string]json.RawMessage

	// present records the salary input keys found while decoding, null or not
	present map[string]bool
}

// HasSalaryPeriod reports whether the record carries a salary_period key,
// even if its value is null
func (r *Record) HasSalaryPeriod() bool {
	return r.SalaryPeriod != nil || r.present[fieldSalaryPeriod]
}

// putOptional writes key when value is set or the upstream record had it
func (r Record) putOptional(out map[string]any, key string, value any, set bool) {
	if set || r.present[key] {
		out[key] = value
	}
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+8)
	for key, value := range r.Extra {
		out[key] = value
	}

	if _, ok := r.Extra[fieldID]; !ok && r.ID != "" {
		out[fieldID] = r.ID
	}
	out[fieldJobPostingLocation] = r.JobPostingLocation

	coordinates := r.Coordinates
	if coordinates == nil {
		coordinates = []LocationPoint{}
	}
	out[fieldCoordinates] = coordinates

	if r.StatusEvents != nil {
		out[fieldStatusEvents] = r.StatusEvents
	}
	r.putOptional(out, fieldSalaryLow, r.SalaryLow, r.SalaryLow != nil)
	r.putOptional(out, fieldSalaryHigh, r.SalaryHigh, r.SalaryHigh != nil)
	r.putOptional(out, fieldSalaryPeriod, r.SalaryPeriod, r.SalaryPeriod != nil)
	out[fieldSalary] = r.Salary

	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("record: %w", err)
	}

	var record Record
	for _, key := range []string{fieldSalaryLow, fieldSalaryHigh, fieldSalaryPeriod} {
		if _, ok := fields[key]; ok {
			if record.present == nil {
				record.present = make(map[string]bool, 3)
			}
			record.present[key] = true
		}
	}

	// id stays in Extra so its original JSON type survives a round trip
	if raw, ok := fields[fieldID]; ok {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			id = string(raw)
		}
		record.ID = id
	}

	if err := take(fields, fieldJobPostingLocation, &record.JobPostingLocation); err != nil {
		return err
	}
	if err := take(fields, fieldCoordinates, &record.Coordinates); err != nil {
		return err
	}
	if err := take(fields, fieldStatusEvents, &record.StatusEvents); err != nil {
		return err
	}
	if err := take(fields, fieldSalaryLow, &record.SalaryLow); err != nil {
		return err
	}
	if err := take(fields, fieldSalaryHigh, &record.SalaryHigh); err != nil {
		return err
	}
	if err := take(fields, fieldSalaryPeriod, &record.SalaryPeriod); err != nil {
		return err
	}
	if err := take(fields, fieldSalary, &record.Salary); err != nil {
		return err
	}

	record.Extra = fields
	*r = record
	return nil
}

// take decodes fields[key] into dest and removes it from fields. A missing
// key leaves dest untouched.
func take(fields map[string]json.RawMessage, key string, dest any) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("record field %s: %w", key, err)
	}
	delete(fields, key)
	return nil
}
