package catalog

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	dErrors "recibos/pkg/domain-errors"
	strutil "recibos/pkg/platform/strings"
)

// Period identifies one payroll month.
type Period struct {
	Year  int
	Month int
}

var (
	folderPattern = regexp.MustCompile(`^(\d{2})-(\d{4})$`)
	labelPattern  = regexp.MustCompile(`^(\d{1,2})\s*[/-]\s*(\d{4})$`)
)

// ParseFolder maps a store folder name ("03-2025") to its period. Anything
// else reports false and is ignored by the catalog.
func ParseFolder(name string) (Period, bool) {
	m := folderPattern.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return Period{}, false
	}
	return build(m[1], m[2])
}

// ParseLabel accepts user or operator input such as "03/2025", "3/2025" or
// "03-2025".
func ParseLabel(label string) (Period, error) {
	m := labelPattern.FindStringSubmatch(strings.TrimSpace(label))
	if m == nil {
		return Period{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid period %q, expected mm/yyyy", label))
	}
	p, ok := build(m[1], m[2])
	if !ok {
		return Period{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid month in period %q", label))
	}
	return p, nil
}

// ParseLabels parses a list of labels, accepting comma separated entries,
// and returns them canonical ("mm/yyyy") without repeats.
func ParseLabels(raw []string) ([]string, error) {
	entries := strutil.SplitList(raw)
	out := make([]string, 0, len(entries))
	seen := make(map[Period]bool, len(entries))
	for _, entry := range entries {
		p, err := ParseLabel(entry)
		if err != nil {
			return nil, err
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p.String())
		}
	}
	return out, nil
}

// MustParseLabel is ParseLabel for constants in tests and fixtures.
func MustParseLabel(label string) Period {
	p, err := ParseLabel(label)
	if err != nil {
		panic(err)
	}
	return p
}

func build(month, year string) (Period, bool) {
	mm, _ := strconv.Atoi(month)
	yyyy, _ := strconv.Atoi(year)
	if mm < 1 || mm > 12 {
		return Period{}, false
	}
	return Period{Year: yyyy, Month: mm}, true
}

// String renders the canonical "mm/yyyy" label.
func (p Period) String() string {
	return fmt.Sprintf("%02d/%04d", p.Month, p.Year)
}

// Folder renders the store folder name "mm-yyyy".
func (p Period) Folder() string {
	return fmt.Sprintf("%02d-%04d", p.Month, p.Year)
}

// Compare orders by (year, month) ascending.
func (p Period) Compare(o Period) int {
	if p.Year != o.Year {
		return p.Year - o.Year
	}
	return p.Month - o.Month
}

// SortNewestFirst sorts in place, newest period first, and drops duplicates.
func SortNewestFirst(periods []Period) []Period {
	slices.SortFunc(periods, func(a, b Period) int { return b.Compare(a) })
	return slices.Compact(periods)
}

// Labels renders each period with String.
func Labels(periods []Period) []string {
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = p.String()
	}
	return out
}
