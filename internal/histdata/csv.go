// Package histdata reads historical indicator datasets used for backtest
// replay and writes backtest trade reports.
package histdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// Columns names the dataset headers the replay reads.
type Columns struct {
	Close      string
	Time       string
	LongCross  string
	ShortCross string
}

// DefaultColumns matches TradingView "Blue Wave" indicator exports.
var DefaultColumns = Columns{
	Close:      "close",
	Time:       "time",
	LongCross:  "Blue Wave Crossing UP",
	ShortCross: "Blue Wave Crossing Down",
}

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("histdata: missing column")

// ParseString parses an inline CSV dataset with DefaultColumns.
func ParseString(raw string) ([]domain.HistRow, error) {
	return Parse(strings.NewReader(raw), DefaultColumns)
}

// Parse reads a CSV dataset with a header row. Close and time columns are
// required; signal columns may be missing entirely. Unparseable or "NaN"
// signal cells become absent signals, and an unparseable close marks the row
// with CloseOK=false. Rows the CSV reader cannot split are skipped.
func Parse(r io.Reader, cols Columns) ([]domain.HistRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("histdata: empty dataset")
		}
		return nil, fmt.Errorf("histdata: read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	closeIdx, ok := idx[cols.Close]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingColumn, cols.Close)
	}
	timeIdx, ok := idx[cols.Time]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingColumn, cols.Time)
	}
	longIdx, hasLong := idx[cols.LongCross]
	shortIdx, hasShort := idx[cols.ShortCross]

	var rows []domain.HistRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			// A malformed row is dropped; replay continues with the next one.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("histdata: read line %d: %w", line, err)
		}

		var row domain.HistRow
		if v, ok := number(cell(rec, closeIdx)); ok {
			row.Close, row.CloseOK = v, true
		}
		row.Time = cell(rec, timeIdx)
		if hasLong {
			row.LongCross = signal(cell(rec, longIdx))
		}
		if hasShort {
			row.ShortCross = signal(cell(rec, shortIdx))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func number(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func signal(s string) *float64 {
	v, ok := number(s)
	if !ok {
		return nil
	}
	return &v
}
