package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// CSV headers
const (
	ColumnDate        = "Date"
	ColumnAdjClose    = "Adj Close"
	ColumnVolume      = "Volume"
	ColumnTicker      = "ticker"
	ColumnOutstanding = "sharesOutstanding"
)

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

// Bar is one day of adjusted close and volume; missing cells are NaN
type Bar struct {
	Date     time.Time
	AdjClose float64
	Volume   float64
}

// ReadPriceVolume parses a Date,Adj Close,Volume CSV (other columns ignored).
// Rows where both values are missing are dropped.
func ReadPriceVolume(r io.Reader) ([]Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrBadFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	idx, err := headerIndex(header, ColumnDate, ColumnAdjClose, ColumnVolume)
	if err != nil {
		return nil, err
	}

	bars := make([]Bar, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadFormat, line, err)
		}

		date, err := parseDate(cell(record, idx[ColumnDate]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadFormat, line, err)
		}
		price, err := parseFloat(cell(record, idx[ColumnAdjClose]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadFormat, line, err)
		}
		volume, err := parseFloat(cell(record, idx[ColumnVolume]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadFormat, line, err)
		}

		if math.IsNaN(price) && math.IsNaN(volume) {
			continue
		}
		bars = append(bars, Bar{Date: date, AdjClose: price, Volume: volume})
	}
	return bars, nil
}

// WritePriceVolume writes bars in the format ReadPriceVolume reads
func WritePriceVolume(w io.Writer, bars []Bar) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{ColumnDate, ColumnAdjClose, ColumnVolume}); err != nil {
		return err
	}
	for _, b := range bars {
		if err := writer.Write([]string{b.Date.Format("2006-01-02"), formatFloat(b.AdjClose), formatFloat(b.Volume)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadSharesOutstanding parses a CSV with ticker and sharesOutstanding columns.
// Rows with an empty or unparseable count are dropped; the first row per ticker wins.
func ReadSharesOutstanding(r io.Reader) (map[string]float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: shares outstanding header: %v", ErrBadFormat, err)
	}
	idx, err := headerIndex(header, ColumnTicker, ColumnOutstanding)
	if err != nil {
		return nil, err
	}

	outstanding := make(map[string]float64)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}

		ticker := cell(record, idx[ColumnTicker])
		count, err := parseFloat(cell(record, idx[ColumnOutstanding]))
		if ticker == "" || err != nil || math.IsNaN(count) {
			continue
		}
		if _, dup := outstanding[ticker]; dup {
			continue
		}
		outstanding[ticker] = count
	}
	return outstanding, nil
}

func headerIndex(header []string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrBadFormat, col)
		}
	}
	return idx, nil
}

func cell(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// parseFloat maps empty and "null" cells to NaN
func parseFloat(s string) (float64, error) {
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
