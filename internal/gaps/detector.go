// Package gaps computes which periods are expected but missing from a
// catalog listing. The detector is pure: all time dependence enters
// through the caller-supplied "now", so it is fully unit-testable.
package gaps

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/ternarybob/humus/internal/models"
)

// Pattern extracts a scheduling period from a raw asset name. The
// regular expression must capture the year in group 1 and, for monthly
// patterns, the month in group 2. Version suffixes are the pattern's
// concern (make them optional in the expression).
type Pattern struct {
	re          *regexp.Regexp
	granularity models.Granularity
}

// NewPattern compiles a period-extraction pattern.
func NewPattern(expr string, granularity models.Granularity) (*Pattern, error) {
	if !granularity.Valid() {
		return nil, fmt.Errorf("invalid granularity %q", granularity)
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid name pattern %q: %w", expr, err)
	}

	wantGroups := 1
	if granularity == models.GranularityMonth {
		wantGroups = 2
	}
	if re.NumSubexp() < wantGroups {
		return nil, fmt.Errorf("name pattern %q: need %d capture group(s), have %d", expr, wantGroups, re.NumSubexp())
	}

	return &Pattern{re: re, granularity: granularity}, nil
}

// Granularity returns the pattern's period granularity.
func (p *Pattern) Granularity() models.Granularity {
	return p.granularity
}

// Parse extracts the period from a raw asset name. The second return is
// false when the name does not match the pattern.
func (p *Pattern) Parse(rawName string) (models.Period, bool) {
	m := p.re.FindStringSubmatch(rawName)
	if m == nil {
		return models.Period{}, false
	}

	year, err := strconv.Atoi(m[1])
	if err != nil {
		return models.Period{}, false
	}

	if p.granularity == models.GranularityYear {
		return models.Period{Year: year}, true
	}

	month, err := strconv.Atoi(m[2])
	if err != nil || month < 1 || month > 12 {
		return models.Period{}, false
	}
	return models.Period{Year: year, Month: month}, true
}

// Existing parses a catalog listing into the set of periods already
// present. Names that do not match the pattern are ignored.
func Existing(listing []models.CatalogEntry, pattern *Pattern) map[models.Period]bool {
	existing := make(map[models.Period]bool)
	for _, entry := range listing {
		if period, ok := pattern.Parse(entry.RawName); ok {
			existing[period] = true
		}
	}
	return existing
}

// ScanStart returns the earliest period to scan from: the first period
// of the earliest year present in the listing, or the first period of
// epochYear when the listing holds nothing recognizable. The system
// always has a sane earliest boundary.
func ScanStart(listing []models.CatalogEntry, pattern *Pattern, epochYear int) models.Period {
	minYear := 0
	for period := range Existing(listing, pattern) {
		if minYear == 0 || period.Year < minYear {
			minYear = period.Year
		}
	}
	if minYear == 0 {
		minYear = epochYear
	}

	if pattern.granularity == models.GranularityMonth {
		return models.Period{Year: minYear, Month: 1}
	}
	return models.Period{Year: minYear}
}

// ScanEnd returns "now" minus lag whole periods: the most recent period
// considered complete enough upstream to schedule. Lag differs per
// source product, so it is always caller-supplied.
func ScanEnd(now time.Time, granularity models.Granularity, lag int) models.Period {
	if granularity == models.GranularityYear {
		return models.Period{Year: now.Year() - lag}
	}

	year, month := now.Year(), int(now.Month())
	month -= lag
	for month < 1 {
		month += 12
		year--
	}
	return models.Period{Year: year, Month: month}
}

// FindMissing returns every period in [scanStart, scanEnd] absent from
// the listing, in ascending order. An empty result means the catalog is
// up to date; a scanEnd before scanStart means no complete period exists
// yet and also yields an empty result.
func FindMissing(listing []models.CatalogEntry, pattern *Pattern, scanStart, scanEnd models.Period) []models.Period {
	existing := Existing(listing, pattern)

	var missing []models.Period
	for p := scanStart; !p.After(scanEnd); p = p.Next() {
		if !existing[p] {
			missing = append(missing, p)
		}
	}
	return missing
}
