package prices

import (
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store used by tests and dry runs. It
// deep-copies on both save and load so callers can never alias the
// stored data.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]*Table
	series map[string]*Series
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]*Table),
		series: make(map[string]*Series),
	}
}

// SaveTable stores a copy of the table under path
func (ms *MemoryStore) SaveTable(path string, table *Table) error {
	if table == nil || table.NumCols() == 0 {
		return fmt.Errorf("no table data to save")
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.tables[path] = copyTable(table)
	return nil
}

// LoadTable returns a copy of the stored table
func (ms *MemoryStore) LoadTable(path string) (*Table, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	table, ok := ms.tables[path]
	if !ok {
		return nil, fmt.Errorf("no table stored at %s", path)
	}
	return copyTable(table), nil
}

// SaveSeries stores a copy of the series under path
func (ms *MemoryStore) SaveSeries(path string, series *Series) error {
	if series == nil || series.Len() == 0 {
		return fmt.Errorf("no series data to save")
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.series[path] = copySeries(series)
	return nil
}

// LoadSeries returns a copy of the stored series
func (ms *MemoryStore) LoadSeries(path string) (*Series, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	series, ok := ms.series[path]
	if !ok {
		return nil, fmt.Errorf("no series stored at %s", path)
	}
	return copySeries(series), nil
}

// Exists reports whether anything is stored under path
func (ms *MemoryStore) Exists(path string) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	_, table := ms.tables[path]
	_, series := ms.series[path]
	return table || series
}

func copyTable(t *Table) *Table {
	out := &Table{
		Symbols: append([]string(nil), t.Symbols...),
		Dates:   append([]time.Time(nil), t.Dates...),
		Values:  make([][]float64, len(t.Values)),
	}
	for i, row := range t.Values {
		out.Values[i] = append([]float64(nil), row...)
	}
	return out
}

func copySeries(s *Series) *Series {
	return &Series{
		Symbol: s.Symbol,
		Dates:  append([]time.Time(nil), s.Dates...),
		Closes: append([]float64(nil), s.Closes...),
	}
}
