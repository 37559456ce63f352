package status

import "github.com/cuongbtq/tracker-enrich/internal/domain"

// labels maps upstream tracker status codes to semantic labels
var labels = map[int]string{
	1:  domain.StatusSaved,
	2:  domain.StatusApplied,
	11: domain.StatusScreen,
	23: domain.StatusRejected,
}

// Label returns the label for an upstream status code
func Label(code int) (string, bool) {
	label, ok := labels[code]
	return label, ok
}

// Normalize replaces known status codes with their labels in place. Unknown
// codes, opaque values and labels are left unchanged, so running it twice is a
// no-op the second time.
func Normalize(records []domain.Record) error {
	for i := range records {
		record := &records[i]
		if record.StatusEvents == nil {
			return &domain.ContractError{
				RecordID: record.ID,
				Field:    "status_events",
				Reason:   "field is missing",
			}
		}

		for j := range record.StatusEvents {
			event := &record.StatusEvents[j]
			if event.Status.Labeled() || event.Status.Opaque() {
				continue
			}
			if label, ok := Label(event.Status.Code); ok {
				event.Status = domain.LabelStatus(label)
			}
		}
	}
	return nil
}
