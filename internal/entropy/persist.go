package entropy

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// SaveCSV writes the series as a (Date, Entropy, Valid) file so reruns
// can skip recomputation. Invalid points keep an empty value cell.
func SaveCSV(path string, series *Series) error {
	if series == nil || series.Len() == 0 {
		return fmt.Errorf("no entropy points to save")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create entropy cache directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create entropy cache file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Date", "Entropy", "Valid"}); err != nil {
		return fmt.Errorf("write entropy header: %w", err)
	}

	for _, p := range series.Points {
		record := []string{p.Date.Format("2006-01-02"), "", "0"}
		if !p.Invalid {
			record[1] = strconv.FormatFloat(p.Value, 'f', -1, 64)
			record[2] = "1"
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write entropy row %s: %w", record[0], err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// LoadCSV reads a series written by SaveCSV
func LoadCSV(path, market string) (*Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open entropy cache file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read entropy cache %s: %w", filepath.Base(path), err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("entropy cache %s holds no points", filepath.Base(path))
	}

	series := &Series{Market: market}
	for lineNo, record := range records[1:] {
		if len(record) != 3 {
			return nil, fmt.Errorf("entropy cache %s line %d: %d fields, want 3",
				filepath.Base(path), lineNo+2, len(record))
		}

		date, err := time.Parse("2006-01-02", record[0])
		if err != nil {
			return nil, fmt.Errorf("entropy cache %s line %d: parse date %q: %w",
				filepath.Base(path), lineNo+2, record[0], err)
		}

		point := Point{Date: date, Invalid: record[2] != "1"}
		if !point.Invalid {
			v, err := strconv.ParseFloat(record[1], 64)
			if err != nil {
				return nil, fmt.Errorf("entropy cache %s line %d: parse value %q: %w",
					filepath.Base(path), lineNo+2, record[1], err)
			}
			point.Value = v
		}

		series.Points = append(series.Points, point)
	}

	return series, nil
}
