package collector

import (
	"fmt"
	"time"
)

// expandUnits lists the crawl dates for one year's month range: every
// calendar day when allDays, otherwise each month's last day. Month-end is
// the default because the source system's cumulative fields are only
// meaningful at a month boundary.
func expandUnits(year, monthStart, monthEnd int, allDays bool) []time.Time {
	if !allDays {
		dates := make([]time.Time, 0, monthEnd-monthStart+1)
		for month := monthStart; month <= monthEnd; month++ {
			dates = append(dates, lastDayOfMonth(year, month))
		}
		return dates
	}

	var dates []time.Time
	start := time.Date(year, time.Month(monthStart), 1, 0, 0, 0, 0, time.UTC)
	end := lastDayOfMonth(year, monthEnd)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

func lastDayOfMonth(year, month int) time.Time {
	return time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// yearlySnapshotName returns the yearly snapshot base name. Partial month
// coverage shows up in the name so the downstream combiner can tell a full
// year from a partial one.
func yearlySnapshotName(year, monthStart, monthEnd int) string {
	switch {
	case monthStart > 1 && monthEnd < 12:
		return fmt.Sprintf("yearly_%d_%02d-%02d", year, monthStart, monthEnd)
	case monthStart > 1:
		return fmt.Sprintf("yearly_%d_%02d-12", year, monthStart)
	case monthEnd < 12:
		return fmt.Sprintf("yearly_%d_01-%02d", year, monthEnd)
	default:
		return fmt.Sprintf("yearly_%d", year)
	}
}

// yearSummaryFilename follows the same partial-range rules for the per-year
// summary JSON.
func yearSummaryFilename(year, monthStart, monthEnd int) string {
	switch {
	case monthStart > 1 && monthEnd < 12:
		return fmt.Sprintf("collection_summary_%d_%02d-%02d.json", year, monthStart, monthEnd)
	case monthStart > 1:
		return fmt.Sprintf("collection_summary_%d_%02d-12.json", year, monthStart)
	case monthEnd < 12:
		return fmt.Sprintf("collection_summary_%d_01-%02d.json", year, monthEnd)
	default:
		return fmt.Sprintf("collection_summary_%d.json", year)
	}
}

// rangeString labels the whole run for the global summary filename.
func rangeString(req Request) string {
	fullMonths := req.StartMonth == 1 && req.EndMonth == 12
	switch {
	case req.StartYear == req.EndYear && fullMonths:
		return fmt.Sprintf("%d", req.StartYear)
	case req.StartYear == req.EndYear:
		return fmt.Sprintf("%d_%02d-%02d", req.StartYear, req.StartMonth, req.EndMonth)
	case fullMonths:
		return fmt.Sprintf("%d-%d", req.StartYear, req.EndYear)
	default:
		return fmt.Sprintf("%d_%02d-%d_%02d", req.StartYear, req.StartMonth, req.EndYear, req.EndMonth)
	}
}
