package db

import (
	"fmt"
	"strings"
	"time"
)

// Filter represents a single sales query condition.
type Filter interface {
	// SQL returns the SQL fragment for this filter
	SQL() string

	// Args returns the arguments for this filter
	Args() []interface{}

	// Valid checks if the filter is valid
	Valid() bool
}

// PlatformFilter filters sales by platform id.
type PlatformFilter struct {
	Platform string
}

// Valid rejects empty values and the "all" sentinel.
func (f *PlatformFilter) Valid() bool {
	p := strings.TrimSpace(f.Platform)
	return p != "" && p != "all"
}

// SQL returns the SQL fragment for platform filtering.
func (f *PlatformFilter) SQL() string {
	return "platform = ?"
}

// Args returns the arguments for platform filtering.
func (f *PlatformFilter) Args() []interface{} {
	return []interface{}{strings.TrimSpace(f.Platform)}
}

// DateRangeFilter filters by sale date. Bounds are Unix milliseconds, zero
// meaning open.
type DateRangeFilter struct {
	From int64
	To   int64
}

// Valid checks that at least one bound is set and the range is ordered.
func (f *DateRangeFilter) Valid() bool {
	if f.From == 0 && f.To == 0 {
		return false
	}
	if f.From > 0 && f.To > 0 && f.From > f.To {
		return false
	}
	return true
}

// SQL returns the SQL fragment for date range filtering.
func (f *DateRangeFilter) SQL() string {
	var parts []string
	if f.From > 0 {
		parts = append(parts, "date >= ?")
	}
	if f.To > 0 {
		parts = append(parts, "date <= ?")
	}
	return strings.Join(parts, " AND ")
}

// Args returns the arguments for date range filtering.
func (f *DateRangeFilter) Args() []interface{} {
	var args []interface{}
	if f.From > 0 {
		args = append(args, f.From)
	}
	if f.To > 0 {
		args = append(args, f.To)
	}
	return args
}

// TextFilter matches a case-insensitive substring of the product name or
// any material name.
type TextFilter struct {
	Query string
}

// Valid checks the query is not blank.
func (f *TextFilter) Valid() bool {
	return strings.TrimSpace(f.Query) != ""
}

// SQL returns the SQL fragment for text filtering.
func (f *TextFilter) SQL() string {
	return `search_text LIKE ? ESCAPE '\'`
}

// Args returns the escaped LIKE pattern.
func (f *TextFilter) Args() []interface{} {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	q = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
	return []interface{}{"%" + q + "%"}
}

// FilterBuilder builds SQL filter conditions from multiple filters.
type FilterBuilder struct {
	filters []Filter
}

// NewFilterBuilder creates a new FilterBuilder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{filters: make([]Filter, 0)}
}

// Platform adds a platform filter.
func (fb *FilterBuilder) Platform(platform string) *FilterBuilder {
	return fb.add(&PlatformFilter{Platform: platform})
}

// DateRange adds a date range filter.
func (fb *FilterBuilder) DateRange(from, to int64) *FilterBuilder {
	return fb.add(&DateRangeFilter{From: from, To: to})
}

// DateFrom adds a "from date" filter.
func (fb *FilterBuilder) DateFrom(from int64) *FilterBuilder {
	return fb.DateRange(from, 0)
}

// Text adds a product or material name filter.
func (fb *FilterBuilder) Text(query string) *FilterBuilder {
	return fb.add(&TextFilter{Query: query})
}

func (fb *FilterBuilder) add(filter Filter) *FilterBuilder {
	if filter.Valid() {
		fb.filters = append(fb.filters, filter)
	}
	return fb
}

// Count returns the number of filters.
func (fb *FilterBuilder) Count() int {
	return len(fb.filters)
}

// Build builds the SQL WHERE clause and returns the arguments.
func (fb *FilterBuilder) Build() (string, []interface{}) {
	if len(fb.filters) == 0 {
		return "", nil
	}

	var sqlParts []string
	var args []interface{}
	for _, filter := range fb.filters {
		sqlParts = append(sqlParts, filter.SQL())
		args = append(args, filter.Args()...)
	}
	return strings.Join(sqlParts, " AND "), args
}

// String returns a string representation of the filters (for debugging).
func (fb *FilterBuilder) String() string {
	if len(fb.filters) == 0 {
		return "(no filters)"
	}
	var parts []string
	for _, filter := range fb.filters {
		parts = append(parts, fmt.Sprintf("%T", filter))
	}
	return strings.Join(parts, ", ")
}

// Period names a sales history window.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod validates a period name. Empty means all.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PeriodAll:
		return PeriodAll, nil
	case PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", fmt.Errorf("invalid period: %s", s)
	}
}

// Since returns the start of the window ending at now. The zero time means
// no lower bound. Week is a rolling 7 days; month and year step back one
// calendar month or year to the start of that day.
func (p Period) Since(now time.Time) time.Time {
	y, m, d := now.Date()
	switch p {
	case PeriodWeek:
		return now.Add(-7 * 24 * time.Hour)
	case PeriodMonth:
		return time.Date(y, m-1, d, 0, 0, 0, 0, now.Location())
	case PeriodYear:
		return time.Date(y-1, m, d, 0, 0, 0, 0, now.Location())
	default:
		return time.Time{}
	}
}

// SalesFilter describes a sales history query.
type SalesFilter struct {
	Period   Period
	Platform string
	Query    string
	Now      time.Time
}

// Builder converts the filter into SQL conditions.
func (f SalesFilter) Builder() *FilterBuilder {
	fb := NewFilterBuilder()

	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	if since := f.Period.Since(now); !since.IsZero() {
		fb.DateFrom(since.UnixMilli())
	}
	return fb.Platform(f.Platform).Text(f.Query)
}
