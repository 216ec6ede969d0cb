package timeseries

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrUnsorted is returned when dates are not strictly increasing
var ErrUnsorted = errors.New("dates must be strictly increasing")

// Table is an ordered, date-keyed table of float64 values
// ⭐ SSOT: 가격/거래량 히스토리는 모두 이 타입으로 표현 (NaN = 결측)
//
// Values are stored column-major. Every operation returns a new Table,
// the receiver is never mutated.
type Table struct {
	dates   []time.Time
	columns []string
	index   map[string]int
	values  [][]float64 // values[col][row]
}

// New creates a table from dates, column names and column-major values
func New(dates []time.Time, columns []string, values [][]float64) (*Table, error) {
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("row %d (%s): %w", i, dates[i].Format("2006-01-02"), ErrUnsorted)
		}
	}
	if len(values) != len(columns) {
		return nil, fmt.Errorf("got %d value columns for %d column names", len(values), len(columns))
	}

	index := make(map[string]int, len(columns))
	for j, col := range columns {
		if _, dup := index[col]; dup {
			return nil, fmt.Errorf("duplicate column %q", col)
		}
		if len(values[j]) != len(dates) {
			return nil, fmt.Errorf("column %q has %d values, want %d", col, len(values[j]), len(dates))
		}
		index[col] = j
	}

	t := &Table{
		dates:   append([]time.Time(nil), dates...),
		columns: append([]string(nil), columns...),
		index:   index,
		values:  make([][]float64, len(columns)),
	}
	for j := range values {
		t.values[j] = append([]float64(nil), values[j]...)
	}
	return t, nil
}

// Empty returns a table with no rows and no columns
func Empty() *Table {
	return &Table{index: map[string]int{}}
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.dates)
}

// Width returns the number of columns
func (t *Table) Width() int {
	return len(t.columns)
}

// Dates returns a copy of the row dates
func (t *Table) Dates() []time.Time {
	return append([]time.Time(nil), t.dates...)
}

// Date returns the date of row i
func (t *Table) Date(i int) time.Time {
	return t.dates[i]
}

// Columns returns a copy of the column names in table order
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Has reports whether the table has the column
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Column returns a copy of one column's values
func (t *Table) Column(col string) ([]float64, bool) {
	j, ok := t.index[col]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), t.values[j]...), true
}

// At returns the value at row i for col, NaN when the column is unknown
func (t *Table) At(i int, col string) float64 {
	j, ok := t.index[col]
	if !ok {
		return math.NaN()
	}
	return t.values[j][i]
}

// Row returns row i keyed by column (NaN cells included)
func (t *Table) Row(i int) map[string]float64 {
	row := make(map[string]float64, len(t.columns))
	for j, col := range t.columns {
		row[col] = t.values[j][i]
	}
	return row
}

// FirstRow returns the first row, nil for an empty table
func (t *Table) FirstRow() map[string]float64 {
	if t.Len() == 0 {
		return nil
	}
	return t.Row(0)
}

// LastRow returns the last row, nil for an empty table
func (t *Table) LastRow() map[string]float64 {
	if t.Len() == 0 {
		return nil
	}
	return t.Row(t.Len() - 1)
}

// AsOf returns the index of the last row dated at or before date, -1 if none
func (t *Table) AsOf(date time.Time) int {
	// first row strictly after date
	i := sort.Search(len(t.dates), func(i int) bool {
		return t.dates[i].After(date)
	})
	return i - 1
}

// Slice returns rows with start <= date <= end (both ends inclusive)
func (t *Table) Slice(start, end time.Time) *Table {
	lo := sort.Search(len(t.dates), func(i int) bool {
		return !t.dates[i].Before(start)
	})
	hi := sort.Search(len(t.dates), func(i int) bool {
		return t.dates[i].After(end)
	})
	if hi < lo {
		hi = lo
	}
	return t.rows(lo, hi)
}

// Head returns the first n rows
func (t *Table) Head(n int) *Table {
	if n > t.Len() {
		n = t.Len()
	}
	if n < 0 {
		n = 0
	}
	return t.rows(0, n)
}

// Select returns the given columns in the given order.
// Unknown and repeated columns are ignored.
func (t *Table) Select(cols []string) *Table {
	out := &Table{
		dates: append([]time.Time(nil), t.dates...),
		index: make(map[string]int, len(cols)),
	}
	for _, col := range cols {
		j, ok := t.index[col]
		if !ok {
			continue
		}
		if _, dup := out.index[col]; dup {
			continue
		}
		out.index[col] = len(out.columns)
		out.columns = append(out.columns, col)
		out.values = append(out.values, append([]float64(nil), t.values[j]...))
	}
	return out
}

// ForwardFill replaces each NaN with the most recent known value at or before its row.
// Leading NaNs stay NaN.
func (t *Table) ForwardFill() *Table {
	return t.mapColumns(func(src []float64) []float64 {
		dst := make([]float64, len(src))
		last := math.NaN()
		for i, v := range src {
			if !math.IsNaN(v) {
				last = v
			}
			dst[i] = last
		}
		return dst
	})
}

// BackwardFill replaces each NaN with the nearest known value at or after its row.
// Trailing NaNs stay NaN.
func (t *Table) BackwardFill() *Table {
	return t.mapColumns(func(src []float64) []float64 {
		dst := make([]float64, len(src))
		next := math.NaN()
		for i := len(src) - 1; i >= 0; i-- {
			if !math.IsNaN(src[i]) {
				next = src[i]
			}
			dst[i] = next
		}
		return dst
	})
}

// Returns computes simple daily returns v[i]/v[i-1] - 1.
// Prices are forward-filled first; the first row and rows that are NaN
// in every column are dropped.
func (t *Table) Returns() *Table {
	filled := t.ForwardFill()
	if t.Len() < 2 {
		return filled.rows(0, 0)
	}

	n := t.Len() - 1
	rets := make([][]float64, len(t.columns))
	for j, src := range filled.values {
		col := make([]float64, n)
		for i := 1; i < len(src); i++ {
			col[i-1] = src[i]/src[i-1] - 1
		}
		rets[j] = col
	}

	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		for j := range rets {
			if !math.IsNaN(rets[j][i]) {
				keep = append(keep, i)
				break
			}
		}
	}

	out := &Table{
		dates:   make([]time.Time, len(keep)),
		columns: append([]string(nil), t.columns...),
		index:   t.copyIndex(),
		values:  make([][]float64, len(t.columns)),
	}
	for k, i := range keep {
		out.dates[k] = t.dates[i+1]
	}
	for j := range rets {
		col := make([]float64, len(keep))
		for k, i := range keep {
			col[k] = rets[j][i]
		}
		out.values[j] = col
	}
	return out
}

func (t *Table) rows(lo, hi int) *Table {
	out := &Table{
		dates:   append([]time.Time(nil), t.dates[lo:hi]...),
		columns: append([]string(nil), t.columns...),
		index:   t.copyIndex(),
		values:  make([][]float64, len(t.columns)),
	}
	for j := range t.values {
		out.values[j] = append([]float64(nil), t.values[j][lo:hi]...)
	}
	return out
}

func (t *Table) mapColumns(fn func([]float64) []float64) *Table {
	out := &Table{
		dates:   append([]time.Time(nil), t.dates...),
		columns: append([]string(nil), t.columns...),
		index:   t.copyIndex(),
		values:  make([][]float64, len(t.columns)),
	}
	for j := range t.values {
		out.values[j] = fn(t.values[j])
	}
	return out
}

func (t *Table) copyIndex() map[string]int {
	index := make(map[string]int, len(t.index))
	for k, v := range t.index {
		index[k] = v
	}
	return index
}
