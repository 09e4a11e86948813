package app

import (
	"math"

	"chart-abtest-service/internal/domain"
)

// minSummaryRecords suppresses statistics built from a single sample.
const minSummaryRecords = 2

// ResultLog is the append-only list of completed trials in a session.
type ResultLog struct {
	records []domain.ResultRecord
}

func (l *ResultLog) Append(record domain.ResultRecord) {
	l.records = append(l.records, record)
}

func (l *ResultLog) Len() int {
	return len(l.records)
}

// Records returns a copy in chronological order.
func (l *ResultLog) Records() []domain.ResultRecord {
	out := make([]domain.ResultRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Latest is the listing view: newest first, seconds rounded to two places.
func (l *ResultLog) Latest() []domain.ResultRecord {
	out := make([]domain.ResultRecord, len(l.records))
	for i, record := range l.records {
		record.ElapsedSeconds = roundSeconds(record.ElapsedSeconds)
		out[len(l.records)-1-i] = record
	}
	return out
}

func (l *ResultLog) Clear() {
	l.records = nil
}

// Summarize groups answer times by variant. It returns no rows until at least
// two records exist, then one row per variant present in the log.
// Statistics are computed from raw times and rounded to two places.
func (l *ResultLog) Summarize() []domain.SummaryRow {
	if len(l.records) < minSummaryRecords {
		return []domain.SummaryRow{}
	}

	groups := make(map[domain.Variant]*domain.SummaryRow)
	var order []domain.Variant
	for _, record := range l.records {
		row, ok := groups[record.Variant]
		if !ok {
			row = &domain.SummaryRow{
				Variant: record.Variant,
				Min:     record.ElapsedSeconds,
				Max:     record.ElapsedSeconds,
			}
			groups[record.Variant] = row
			order = append(order, record.Variant)
		}
		row.Count++
		row.Mean += record.ElapsedSeconds
		if record.ElapsedSeconds < row.Min {
			row.Min = record.ElapsedSeconds
		}
		if record.ElapsedSeconds > row.Max {
			row.Max = record.ElapsedSeconds
		}
	}

	rows := make([]domain.SummaryRow, 0, len(groups))
	for _, variant := range sortVariants(order) {
		row := groups[variant]
		row.Mean = roundSeconds(row.Mean / float64(row.Count))
		row.Min = roundSeconds(row.Min)
		row.Max = roundSeconds(row.Max)
		rows = append(rows, *row)
	}
	return rows
}

func roundSeconds(v float64) float64 {
	return math.Round(v*100) / 100
}

// sortVariants puts known variants in their canonical order, unknown ones after.
func sortVariants(seen []domain.Variant) []domain.Variant {
	out := make([]domain.Variant, 0, len(seen))
	present := make(map[domain.Variant]bool, len(seen))
	for _, v := range seen {
		present[v] = true
	}
	for _, v := range domain.Variants {
		if present[v] {
			out = append(out, v)
			delete(present, v)
		}
	}
	for _, v := range seen {
		if present[v] {
			out = append(out, v)
		}
	}
	return out
}

