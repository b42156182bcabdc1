package session

// PageSize is the number of periods offered per menu page.
const PageSize = 3

// MoreOption marks the option that advances to the next page.
const MoreOption = "more"

// Menu paginates the periods offered to one recipient. Options are numbered
// from 1 on every page; the "more" option, when present, takes the number
// after the last period.
type Menu struct {
	Offset  int            `json:"offset"`
	Periods []string       `json:"periods"`
	Options map[int]string `json:"options"`
}

// NewMenu builds the first page over periods, newest first.
func NewMenu(periods []string) *Menu {
	m := &Menu{Periods: periods}
	m.render()
	return m
}

// Page returns the periods shown at the current offset.
func (m *Menu) Page() []string {
	end := min(m.Offset+PageSize, len(m.Periods))
	if m.Offset >= end {
		return nil
	}
	return m.Periods[m.Offset:end]
}

// HasMore reports whether a page follows the current one.
func (m *Menu) HasMore() bool {
	return m.Offset+PageSize < len(m.Periods)
}

// Advance moves one page forward, never past the last page. It reports
// whether the offset changed.
func (m *Menu) Advance() bool {
	next := min(m.Offset+PageSize, LastPageOffset(len(m.Periods)))
	if next == m.Offset {
		return false
	}
	m.Offset = next
	m.render()
	return true
}

// Select resolves a presented option number to a period label or
// MoreOption.
func (m *Menu) Select(option int) (string, bool) {
	v, ok := m.Options[option]
	return v, ok
}

func (m *Menu) render() {
	page := m.Page()
	m.Options = make(map[int]string, len(page)+1)
	for i, p := range page {
		m.Options[i+1] = p
	}
	if m.HasMore() {
		m.Options[len(page)+1] = MoreOption
	}
}

// LastPageOffset is the offset of the final page for n periods.
func LastPageOffset(n int) int {
	if n <= 0 {
		return 0
	}
	return ((n - 1) / PageSize) * PageSize
}
