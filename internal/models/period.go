package models

import (
	"fmt"
	"time"
)

// Granularity is the scheduling unit of a product: whole years for the
// auxiliary rasters, year+month pairs for the soil moisture product.
type Granularity string

const (
	GranularityYear  Granularity = "year"
	GranularityMonth Granularity = "month"
)

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	return g == GranularityYear || g == GranularityMonth
}

// Period is one calendar unit of scheduling. Month is zero for yearly
// products. Periods are totally ordered (year-major, month-minor) and
// have a canonical string encoding that parses back via ParsePeriod.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"`
}

// PeriodOf returns the period containing t at the given granularity.
func PeriodOf(t time.Time, g Granularity) Period {
	if g == GranularityMonth {
		return Period{Year: t.Year(), Month: int(t.Month())}
	}
	return Period{Year: t.Year()}
}

// String returns "2015" for yearly periods and "2015-03" for monthly ones.
func (p Period) String() string {
	if p.Month == 0 {
		return fmt.Sprintf("%04d", p.Year)
	}
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// ParsePeriod parses the canonical encodings produced by String.
func ParsePeriod(s string) (Period, error) {
	var p Period
	switch len(s) {
	case 4:
		if _, err := fmt.Sscanf(s, "%04d", &p.Year); err != nil {
			return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
		}
	case 7:
		if _, err := fmt.Sscanf(s, "%04d-%02d", &p.Year, &p.Month); err != nil {
			return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
		}
		if p.Month < 1 || p.Month > 12 {
			return Period{}, fmt.Errorf("invalid period %q: month out of range", s)
		}
	default:
		return Period{}, fmt.Errorf("invalid period %q", s)
	}
	return p, nil
}

// Compare returns -1, 0 or 1 ordering p against other year-major,
// month-minor.
func (p Period) Compare(other Period) int {
	if p.Year != other.Year {
		if p.Year < other.Year {
			return -1
		}
		return 1
	}
	if p.Month != other.Month {
		if p.Month < other.Month {
			return -1
		}
		return 1
	}
	return 0
}

// Before reports whether p precedes other.
func (p Period) Before(other Period) bool {
	return p.Compare(other) < 0
}

// After reports whether p follows other.
func (p Period) After(other Period) bool {
	return p.Compare(other) > 0
}

// Next returns the period following p. Monthly periods roll over into
// January of the next year.
func (p Period) Next() Period {
	if p.Month == 0 {
		return Period{Year: p.Year + 1}
	}
	if p.Month >= 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Granularity returns the granularity implied by the period's shape.
func (p Period) Granularity() Granularity {
	if p.Month == 0 {
		return GranularityYear
	}
	return GranularityMonth
}
