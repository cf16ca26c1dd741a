package domain

import (
	"fmt"
	"math"
)

// TimeSeriesRow is one day of case counts.
type TimeSeriesRow struct {
	Date  Date  `json:"DATE"`
	Cases int64 `json:"CASES"`
}

// ForecastRow is one forecast day with its prediction interval.
type ForecastRow struct {
	Date     Date    `json:"DATE"`
	Forecast float64 `json:"forecast"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
}

// TimeSeriesFromTable reads (date, cases) pairs from the named columns.
// Null counts read as zero; rows with a null date are skipped.
func TimeSeriesFromTable(t *Table, dateCol, casesCol string) ([]TimeSeriesRow, error) {
	di := t.ColumnIndex(dateCol)
	if di < 0 {
		return nil, fmt.Errorf("time series: missing column %s", dateCol)
	}
	ci := t.ColumnIndex(casesCol)
	if ci < 0 {
		return nil, fmt.Errorf("time series: missing column %s", casesCol)
	}

	rows := make([]TimeSeriesRow, 0, len(t.Rows))
	for i, row := range t.Rows {
		raw, ok := row[di].AsString()
		if !ok {
			continue
		}
		d, err := ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("time series row %d: %w", i, err)
		}
		rows = append(rows, TimeSeriesRow{Date: d, Cases: int64(math.Round(t.Float(i, ci)))})
	}
	return rows, nil
}

// ForecastRecords renders forecast rows as JSON-shaped records.
func ForecastRecords(rows []ForecastRow) Value {
	out := make([]Value, len(rows))
	for i, r := range rows {
		out[i] = Object(
			F("DATE", String(r.Date.String())),
			F("forecast", Float(r.Forecast)),
			F("lower", Float(r.Lower)),
			F("upper", Float(r.Upper)),
		)
	}
	return List(out...)
}
