package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawRecord = `{
	"id": "b1f4",
	"company": {"name": "Acme"},
	"job_posting_location": "New York | Boston",
	"status_events": [{"status": 2, "timestamp": 1700000000}, {"status": 99}],
	"salary_low": 100000,
	"salary_high": null,
	"salary_period": 1
}`

func TestRecord_UnmarshalKnownFields(t *testing.T) {
	var record Record
	require.NoError(t, json.Unmarshal([]byte(rawRecord), &record))

	assert.Equal(t, "b1f4", record.ID)
	assert.Equal(t, "New York | Boston", record.JobPostingLocation)
	require.Len(t, record.StatusEvents, 2)
	assert.Equal(t, CodeStatus(2), record.StatusEvents[0].Status)
	assert.Equal(t, CodeStatus(99), record.StatusEvents[1].Status)
	require.NotNil(t, record.SalaryLow)
	assert.Equal(t, 100000.0, *record.SalaryLow)
	assert.Nil(t, record.SalaryHigh)
	require.NotNil(t, record.SalaryPeriod)
	assert.Equal(t, 1, *record.SalaryPeriod)
	assert.Nil(t, record.Coordinates)
}

func TestRecord_PreservesUnknownFields(t *testing.T) {
	var record Record
	require.NoError(t, json.Unmarshal([]byte(rawRecord), &record))

	record.StatusEvents[0].Status = LabelStatus(StatusApplied)
	record.Coordinates = []LocationPoint{{Latitude: 40.7, Longitude: -74.0, Address: "New York"}, RemotePoint}
	salary := 100000.0
	record.Salary = &salary

	payload, err := json.Marshal(record)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))

	assert.Equal(t, "b1f4", out["id"])
	assert.Equal(t, map[string]any{"name": "Acme"}, out["company"])
	assert.Equal(t, 100000.0, out["salary"])
	assert.Nil(t, out["salary_high"])
	assert.Equal(t, []any{
		[]any{40.7, -74.0, "New York"},
		[]any{"remote", "remote", "remote"},
	}, out["coordinates"])

	events := out["status_events"].([]any)
	assert.Equal(t, map[string]any{"status": "applied", "timestamp": 1700000000.0}, events[0])
	assert.Equal(t, map[string]any{"status": 99.0}, events[1])
}

func TestRecord_MissingKeysStayNil(t *testing.T) {
	var record Record
	require.NoError(t, json.Unmarshal([]byte(`{"job_posting_location": "Remote"}`), &record))

	assert.Nil(t, record.StatusEvents)
	assert.Nil(t, record.SalaryPeriod)
	assert.False(t, record.HasSalaryPeriod())

	payload, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"job_posting_location": "Remote",
		"coordinates": [],
		"salary": null
	}`, string(payload))
}

func TestRecord_NullSalaryKeysArePresent(t *testing.T) {
	var record Record
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "a",
		"status_events": [],
		"salary_low": null,
		"salary_high": null,
		"salary_period": null
	}`), &record))

	assert.Nil(t, record.SalaryPeriod)
	assert.True(t, record.HasSalaryPeriod())

	payload, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "a",
		"job_posting_location": "",
		"coordinates": [],
		"status_events": [],
		"salary_low": null,
		"salary_high": null,
		"salary_period": null,
		"salary": null
	}`, string(payload))
}

func TestRecord_SetSalaryKeysAreWritten(t *testing.T) {
	low := 50000.0
	period := 1
	record := Record{ID: "built", SalaryLow: &low, SalaryPeriod: &period}

	payload, err := json.Marshal(record)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	assert.Equal(t, 50000.0, out["salary_low"])
	assert.Equal(t, 1.0, out["salary_period"])
	assert.NotContains(t, out, "salary_high")
}

func TestStatus_OpaqueValuesRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "null", input: `{"status":null,"note":"x"}`},
		{name: "empty string", input: `{"status":"","note":"x"}`},
		{name: "zero code", input: `{"status":0,"note":"x"}`},
		{name: "label", input: `{"status":"applied","note":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var event StatusEvent
			require.NoError(t, json.Unmarshal([]byte(tt.input), &event))

			payload, err := json.Marshal(event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.input, string(payload))
		})
	}
}

func TestStatus_OpaqueIsNotACode(t *testing.T) {
	var null, empty Status
	require.NoError(t, json.Unmarshal([]byte(`null`), &null))
	require.NoError(t, json.Unmarshal([]byte(`""`), &empty))

	assert.True(t, null.Opaque())
	assert.False(t, null.Labeled())
	assert.True(t, empty.Opaque())
	assert.False(t, CodeStatus(0).Opaque())
}

func TestStatus_RejectsNonIntegerValues(t *testing.T) {
	for _, input := range []string{`2.5`, `true`, `{"code": 2}`, `[2]`} {
		var status Status
		err := json.Unmarshal([]byte(input), &status)
		require.Error(t, err, input)
		assert.Contains(t, err.Error(), "expected an integer code or a label")
	}
}

func TestStatusEvent_MissingStatus(t *testing.T) {
	var event StatusEvent
	err := json.Unmarshal([]byte(`{"timestamp": 1}`), &event)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContractViolation))
}

func TestLocationPoint_UnmarshalRejectsShortArray(t *testing.T) {
	var point LocationPoint
	err := json.Unmarshal([]byte(`[1.5, 2.5]`), &point)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3 elements")
}

func TestLocationPoint_RoundTrip(t *testing.T) {
	points := []LocationPoint{
		RemotePoint,
		{Latitude: 47.6062, Longitude: -122.3321, Address: "Seattle, King County, Washington"},
	}

	payload, err := json.Marshal(points)
	require.NoError(t, err)

	var got []LocationPoint
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, points, got)
}
