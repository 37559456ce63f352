package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Status labels produced by the status pass
const (
	StatusSaved    = "saved"
	StatusApplied  = "applied"
	StatusScreen   = "screen"
	StatusRejected = "rejected"
)

// Status is the status of a tracker event: either a semantic label or the raw
// upstream code when the code has no label. Unlabeled codes stay integers on
// the wire. Upstream values that are neither (null, an empty string) are kept
// verbatim in raw.
type Status struct {
	Code  int
	Label string

	raw json.RawMessage
}

// CodeStatus returns an unlabeled status for an upstream code
func CodeStatus(code int) Status {
	return Status{Code: code}
}

// LabelStatus returns a labeled status
func LabelStatus(label string) Status {
	return Status{Label: label}
}

// Labeled reports whether the status carries a semantic label
func (s Status) Labeled() bool {
	return s.Label != ""
}

// Opaque reports whether the status is an upstream value that is neither a
// code nor a label
func (s Status) Opaque() bool {
	return s.raw != nil
}

func (s Status) String() string {
	switch {
	case s.Labeled():
		return s.Label
	case s.Opaque():
		return string(s.raw)
	}
	return strconv.Itoa(s.Code)
}

func (s Status) MarshalJSON() ([]byte, error) {
	switch {
	case s.Labeled():
		return json.Marshal(s.Label)
	case s.Opaque():
		return s.raw, nil
	}
	return json.Marshal(s.Code)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = Status{raw: json.RawMessage("null")}
		return nil

	case bytes.HasPrefix(data, []byte(`"`)):
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return fmt.Errorf("status: %w", err)
		}
		if label == "" {
			*s = Status{raw: json.RawMessage(`""`)}
			return nil
		}
		*s = LabelStatus(label)
		return nil
	}

	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("status: expected an integer code or a label, got %s", data)
	}
	*s = CodeStatus(code)
	return nil
}

// StatusEvent is one entry of a record's status history. Fields other than
// status are carried through untouched.
type StatusEvent struct {
	Status Status
	Extra  map[string]json.RawMessage
}

func (e StatusEvent) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+1)
	for key, value := range e.Extra {
		out[key] = value
	}
	out["status"] = e.Status
	return json.Marshal(out)
}

func (e *StatusEvent) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("status event: %w", err)
	}

	raw, ok := fields["status"]
	if !ok {
		return &ContractError{Field: "status_events.status", Reason: "field is missing"}
	}
	var status Status
	if err := json.Unmarshal(raw, &status); err != nil {
		return err
	}
	delete(fields, "status")

	e.Status = status
	e.Extra = fields
	return nil
}
