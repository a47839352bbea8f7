package prices

import (
	"math"
	"sort"
	"time"
)

// Series holds the daily closing prices of one instrument, sorted by
// date ascending. Closes are adjusted for splits and dividends.
type Series struct {
	Symbol string      `json:"symbol"`
	Dates  []time.Time `json:"dates"`
	Closes []float64   `json:"closes"`
}

// Len returns the number of observations
func (s *Series) Len() int {
	return len(s.Dates)
}

// First returns the earliest observation date
func (s *Series) First() time.Time {
	if len(s.Dates) == 0 {
		return time.Time{}
	}
	return s.Dates[0]
}

// Last returns the latest observation date
func (s *Series) Last() time.Time {
	if len(s.Dates) == 0 {
		return time.Time{}
	}
	return s.Dates[len(s.Dates)-1]
}

// At returns the close on the given date and whether it exists
func (s *Series) At(date time.Time) (float64, bool) {
	i := sort.Search(len(s.Dates), func(i int) bool {
		return !s.Dates[i].Before(date)
	})
	if i < len(s.Dates) && s.Dates[i].Equal(date) {
		return s.Closes[i], true
	}
	return 0, false
}

// SearchDate returns the index of the first observation on or after the
// given date, or Len() when every observation is earlier.
func (s *Series) SearchDate(date time.Time) int {
	return sort.Search(len(s.Dates), func(i int) bool {
		return !s.Dates[i].Before(date)
	})
}

// Slice returns the sub-series with dates in [from, to). Zero bounds
// are open ended.
func (s *Series) Slice(from, to time.Time) *Series {
	lo := 0
	hi := len(s.Dates)
	if !from.IsZero() {
		lo = s.SearchDate(from)
	}
	if !to.IsZero() {
		hi = s.SearchDate(to)
	}
	if lo > hi {
		lo = hi
	}
	return &Series{
		Symbol: s.Symbol,
		Dates:  s.Dates[lo:hi],
		Closes: s.Closes[lo:hi],
	}
}

// Compact drops observations with NaN or non-positive closes in place
// and returns the series for chaining.
func (s *Series) Compact() *Series {
	dates := s.Dates[:0]
	closes := s.Closes[:0]
	for i, c := range s.Closes {
		if math.IsNaN(c) || c <= 0 {
			continue
		}
		dates = append(dates, s.Dates[i])
		closes = append(closes, c)
	}
	s.Dates = dates
	s.Closes = closes
	return s
}

// Table is a dated wide table of closing prices, one column per symbol.
// Missing observations are NaN. Rows are sorted by date ascending and
// columns by symbol, which keeps downstream results independent of
// fetch completion order.
type Table struct {
	Symbols []string    `json:"symbols"`
	Dates   []time.Time `json:"dates"`
	// Values[i][j] is the close of Symbols[j] on Dates[i]
	Values [][]float64 `json:"values"`
}

// NewTable assembles a wide table from per-symbol series. The date axis
// is the sorted union of all observation dates; cells without an
// observation are NaN.
func NewTable(series []*Series) *Table {
	dateSet := make(map[time.Time]struct{})
	for _, s := range series {
		for _, d := range s.Dates {
			dateSet[d] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	dateIdx := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		dateIdx[d] = i
	}

	ordered := make([]*Series, len(series))
	copy(ordered, series)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Symbol < ordered[j].Symbol })

	symbols := make([]string, len(ordered))
	values := make([][]float64, len(dates))
	for i := range values {
		row := make([]float64, len(ordered))
		for j := range row {
			row[j] = math.NaN()
		}
		values[i] = row
	}

	for j, s := range ordered {
		symbols[j] = s.Symbol
		for k, d := range s.Dates {
			values[dateIdx[d]][j] = s.Closes[k]
		}
	}

	return &Table{Symbols: symbols, Dates: dates, Values: values}
}

// NumRows returns the number of dates
func (t *Table) NumRows() int {
	return len(t.Dates)
}

// NumCols returns the number of symbols
func (t *Table) NumCols() int {
	return len(t.Symbols)
}

// Column extracts one symbol as a compacted series, skipping NaN cells.
func (t *Table) Column(symbol string) (*Series, bool) {
	j := -1
	for idx, sym := range t.Symbols {
		if sym == symbol {
			j = idx
			break
		}
	}
	if j < 0 {
		return nil, false
	}

	s := &Series{Symbol: symbol}
	for i, row := range t.Values {
		if math.IsNaN(row[j]) {
			continue
		}
		s.Dates = append(s.Dates, t.Dates[i])
		s.Closes = append(s.Closes, row[j])
	}
	return s, true
}

// Columns returns every column as a compacted series, in symbol order.
func (t *Table) Columns() []*Series {
	out := make([]*Series, 0, len(t.Symbols))
	for _, sym := range t.Symbols {
		if s, ok := t.Column(sym); ok {
			out = append(out, s)
		}
	}
	return out
}

// Select returns a copy of the table restricted to the given symbols,
// keeping the table's own column order. Unknown symbols are ignored.
func (t *Table) Select(symbols []string) *Table {
	keep := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		keep[sym] = struct{}{}
	}

	var cols []int
	var kept []string
	for j, sym := range t.Symbols {
		if _, ok := keep[sym]; ok {
			cols = append(cols, j)
			kept = append(kept, sym)
		}
	}

	out := &Table{Symbols: kept, Dates: t.Dates}
	out.Values = make([][]float64, len(t.Dates))
	for i, row := range t.Values {
		selected := make([]float64, len(cols))
		for k, j := range cols {
			selected[k] = row[j]
		}
		out.Values[i] = selected
	}
	return out
}

// Day normalizes a timestamp to midnight UTC. Cache files and the chart
// source both key observations by calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
