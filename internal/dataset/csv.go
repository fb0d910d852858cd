package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
)

// #region load
// LoadCSV reads a headered CSV file.
func LoadCSV(path string, cols Columns) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	d, err := ReadCSV(f, cols)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return d, nil
}

// ReadCSV parses a headered CSV stream. Prediction and label cells are
// numbers or true/false; sensitive cells are kept verbatim.
func ReadCSV(r io.Reader, cols Columns) (*Data, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	col := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
		return i, nil
	}

	predCol, err := col(cols.Predictions)
	if err != nil {
		return nil, err
	}
	labelCol := -1
	if cols.Labels != "" {
		if labelCol, err = col(cols.Labels); err != nil {
			return nil, err
		}
	}
	sensCols := make([]int, len(cols.Sensitive))
	for i, name := range cols.Sensitive {
		if sensCols[i], err = col(name); err != nil {
			return nil, err
		}
	}

	var preds, labels []float64
	attrs := make([]Attribute, len(cols.Sensitive))
	for i, name := range cols.Sensitive {
		attrs[i].Name = name
	}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		p, err := parseNumber(rec[predCol])
		if err != nil {
			return nil, fmt.Errorf("row %d column %q: %w", line, cols.Predictions, err)
		}
		preds = append(preds, p)
		if labelCol >= 0 {
			l, err := parseNumber(rec[labelCol])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", line, cols.Labels, err)
			}
			labels = append(labels, l)
		}
		for i, c := range sensCols {
			attrs[i].Values = append(attrs[i].Values, strings.TrimSpace(rec[c]))
		}
	}

	d := &Data{Predictions: backend.New(preds), Attributes: attrs}
	if labelCol >= 0 {
		d.Labels = backend.New(labels)
	}
	return d, nil
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true", "yes":
		return 1, nil
	case "false", "no":
		return 0, nil
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadValue, s)
	}
	return x, nil
}
// #endregion load
