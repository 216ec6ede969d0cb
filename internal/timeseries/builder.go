package timeseries

import (
	"math"
	"sort"
	"time"
)

// Builder assembles a Table from per-ticker observations (outer join on dates)
type Builder struct {
	cells   map[string]map[time.Time]float64
	columns []string
	dates   map[time.Time]struct{}
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{
		cells: make(map[string]map[time.Time]float64),
		dates: make(map[time.Time]struct{}),
	}
}

// Set records one observation. Dates are truncated to the UTC day;
// a later Set for the same cell overwrites the earlier one.
func (b *Builder) Set(col string, date time.Time, value float64) {
	day := Day(date)
	column, ok := b.cells[col]
	if !ok {
		column = make(map[time.Time]float64)
		b.cells[col] = column
		b.columns = append(b.columns, col)
	}
	column[day] = value
	b.dates[day] = struct{}{}
}

// AddColumn registers a column even if it never receives a value
func (b *Builder) AddColumn(col string) {
	if _, ok := b.cells[col]; ok {
		return
	}
	b.cells[col] = make(map[time.Time]float64)
	b.columns = append(b.columns, col)
}

// Build returns the table with columns sorted by name and NaN for absent cells
func (b *Builder) Build() *Table {
	dates := make([]time.Time, 0, len(b.dates))
	for d := range b.dates {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	columns := append([]string(nil), b.columns...)
	sort.Strings(columns)

	t := &Table{
		dates:   dates,
		columns: columns,
		index:   make(map[string]int, len(columns)),
		values:  make([][]float64, len(columns)),
	}
	for j, col := range columns {
		t.index[col] = j
		values := make([]float64, len(dates))
		cells := b.cells[col]
		for i, d := range dates {
			if v, ok := cells[d]; ok {
				values[i] = v
			} else {
				values[i] = math.NaN()
			}
		}
		t.values[j] = values
	}
	return t
}

// Day truncates a time to midnight UTC of its calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
