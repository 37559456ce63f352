package salary

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
)

// Salary period codes used by the upstream tracker
const (
	PeriodYearly  = 1
	PeriodHourly  = 2
	PeriodWeekly  = 3
	PeriodMonthly = 4
)

// suspiciousBelow flags non-yearly salaries that look like they were entered
// in the wrong unit
const suspiciousBelow = 100

// hoursPerPeriod holds the divisor applied to each non-yearly period
var hoursPerPeriod = map[int]float64{
	PeriodHourly:  40,
	PeriodWeekly:  40 * 4.33,
	PeriodMonthly: 40 * 52.142,
}

// Derive computes the normalized salary of one record. It returns nil when
// neither bound carries a value. salary_period must be present; its value is
// only read once there is a salary to convert.
func Derive(record *domain.Record, logger *slog.Logger) (*float64, error) {
	if !record.HasSalaryPeriod() {
		return nil, &domain.ContractError{
			RecordID: record.ID,
			Field:    "salary_period",
			Reason:   "field is missing",
		}
	}

	low, hasLow := value(record.SalaryLow)
	high, hasHigh := value(record.SalaryHigh)

	var sal float64
	switch {
	case hasLow && hasHigh:
		sal = math.Floor((low + high) / 2)
	case hasLow:
		sal = low
	case hasHigh:
		sal = high
	default:
		return nil, nil
	}

	if record.SalaryPeriod == nil {
		return nil, &domain.ContractError{
			RecordID: record.ID,
			Field:    "salary_period",
			Reason:   "is null but the record has a salary",
		}
	}
	period := *record.SalaryPeriod

	if period > PeriodYearly && sal < suspiciousBelow {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Salary looks too small for its period",
			slog.String("record_id", record.ID),
			slog.Int("salary_period", period),
			slog.Float64("salary", sal),
			slog.Any("salary_low", record.SalaryLow),
			slog.Any("salary_high", record.SalaryHigh),
		)
	}

	if period != PeriodYearly {
		divisor, ok := hoursPerPeriod[period]
		if !ok {
			return nil, &domain.ContractError{
				RecordID: record.ID,
				Field:    "salary_period",
				Reason:   fmt.Sprintf("no conversion for period %d", period),
			}
		}
		sal = math.Floor(sal / divisor)
	}

	return &sal, nil
}

// Normalize sets Salary on every record. A contract violation aborts the
// batch; records before the failing one keep their new value.
func Normalize(records []domain.Record, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for i := range records {
		sal, err := Derive(&records[i], logger)
		if err != nil {
			return err
		}
		records[i].Salary = sal
	}
	return nil
}

// value treats a missing bound and a zero bound alike
func value(v *float64) (float64, bool) {
	if v == nil || *v == 0 {
		return 0, false
	}
	return *v, true
}
