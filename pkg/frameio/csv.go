// Package frameio reads and writes frames as CSV with a header row.
package frameio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
)

// NATokens are the cell values read as missing.
var NATokens = []string{"", "NA", "NaN", "nan", "null"}

func isNAToken(s string) bool {
	for _, t := range NATokens {
		if s == t {
			return true
		}
	}
	return false
}

// ReadCSV reads a frame from r and stores it under key.
func ReadCSV(r io.Reader, key domain.Key) (*domain.Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %q has no header row", domain.ErrInvalidFrame, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %q: %w", key, err)
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(h)
	}

	vecs := make([][]float64, len(names))
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", key, err)
		}
		for c, cell := range record {
			cell = strings.TrimSpace(cell)
			if isNAToken(cell) {
				vecs[c] = append(vecs[c], math.NaN())
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q line %d column %q: %q is not a number", domain.ErrInvalidFrame, key, line, names[c], cell)
			}
			vecs[c] = append(vecs[c], v)
		}
	}
	for i := range vecs {
		if vecs[i] == nil {
			vecs[i] = []float64{}
		}
	}
	return domain.NewFrame(key, names, vecs)
}

// ReadFile reads a CSV file into a frame keyed by the file name without extension.
func ReadFile(path string) (*domain.Frame, error) {
	//nolint:gosec // input files are chosen by the operator
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, KeyFor(path))
}

// KeyFor derives a frame key from a file path.
func KeyFor(path string) domain.Key {
	base := filepath.Base(path)
	return domain.Key(strings.TrimSuffix(base, filepath.Ext(base)))
}

// WriteCSV writes fr with a header row. Missing values are written as "NA".
func WriteCSV(w io.Writer, fr *domain.Frame) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(fr.Names()); err != nil {
		return err
	}
	record := make([]string, fr.NumCols())
	row := make([]float64, fr.NumCols())
	for r := 0; r < fr.NumRows(); r++ {
		row = fr.Row(r, row)
		for c, v := range row {
			if domain.IsNA(v) {
				record[c] = "NA"
				continue
			}
			record[c] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile writes fr to path, replacing any existing file.
func WriteFile(path string, fr *domain.Frame) (err error) {
	//nolint:gosec // output files are chosen by the operator
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteCSV(f, fr)
}
