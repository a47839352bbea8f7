package prices

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Store persists wide price tables and single benchmark series between
// runs.
type Store interface {
	SaveTable(path string, table *Table) error
	LoadTable(path string) (*Table, error)
	SaveSeries(path string, series *Series) error
	LoadSeries(path string) (*Series, error)
	Exists(path string) bool
}

// FileStore is the CSV-backed store. The first column is the date, the
// remaining columns one instrument each; empty cells are missing
// observations. One mutex guards all files, which is enough for the
// cache's access pattern of whole-file reads and writes.
type FileStore struct {
	mu sync.Mutex
}

// NewFileStore creates a CSV file store
func NewFileStore() *FileStore {
	return &FileStore{}
}

// SaveTable writes a wide price table to path, creating parent
// directories as needed.
func (fs *FileStore) SaveTable(path string, table *Table) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if table == nil || table.NumCols() == 0 {
		return fmt.Errorf("no table data to save")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := append([]string{"Date"}, table.Symbols...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write cache header: %w", err)
	}

	record := make([]string, len(header))
	for i, date := range table.Dates {
		record[0] = date.Format("2006-01-02")
		for j, v := range table.Values[i] {
			if math.IsNaN(v) {
				record[j+1] = ""
			} else {
				record[j+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write cache row %s: %w", record[0], err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// LoadTable reads a wide price table from path
func (fs *FileStore) LoadTable(path string) (*Table, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cache file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read cache file %s: %w", filepath.Base(path), err)
	}
	if len(records) < 1 || len(records[0]) < 2 {
		return nil, fmt.Errorf("cache file %s has no data columns", filepath.Base(path))
	}

	header := records[0]
	symbols := make([]string, len(header)-1)
	copy(symbols, header[1:])

	table := &Table{Symbols: symbols}
	for lineNo, record := range records[1:] {
		if len(record) != len(header) {
			return nil, fmt.Errorf("cache file %s line %d: %d fields, want %d",
				filepath.Base(path), lineNo+2, len(record), len(header))
		}

		date, err := time.Parse("2006-01-02", record[0])
		if err != nil {
			return nil, fmt.Errorf("cache file %s line %d: parse date %q: %w",
				filepath.Base(path), lineNo+2, record[0], err)
		}

		row := make([]float64, len(symbols))
		for j, cell := range record[1:] {
			if cell == "" {
				row[j] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("cache file %s line %d column %s: parse %q: %w",
					filepath.Base(path), lineNo+2, symbols[j], cell, err)
			}
			row[j] = v
		}

		table.Dates = append(table.Dates, date)
		table.Values = append(table.Values, row)
	}

	return table, nil
}

// SaveSeries writes a single-instrument series as a two-column CSV
func (fs *FileStore) SaveSeries(path string, series *Series) error {
	if series == nil || series.Len() == 0 {
		return fmt.Errorf("no series data to save")
	}
	return fs.SaveTable(path, NewTable([]*Series{series}))
}

// LoadSeries reads a two-column CSV written by SaveSeries
func (fs *FileStore) LoadSeries(path string) (*Series, error) {
	table, err := fs.LoadTable(path)
	if err != nil {
		return nil, err
	}
	if table.NumCols() != 1 {
		return nil, fmt.Errorf("cache file %s holds %d columns, want 1", filepath.Base(path), table.NumCols())
	}

	series, ok := table.Column(table.Symbols[0])
	if !ok || series.Len() == 0 {
		return nil, fmt.Errorf("cache file %s holds no observations", filepath.Base(path))
	}
	return series, nil
}

// Exists reports whether a cache file is present
func (fs *FileStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
