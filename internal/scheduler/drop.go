package scheduler

// DropRule decides whether a run stored fewer rows than the previous cycle
// in a way that suggests the list stopped loading early.
type DropRule struct {
	// PageSize is the number of rows the list loads per page. Only runs
	// ending exactly on a page boundary are suspect.
	PageSize int
	// MinDrop is the absolute drop that triggers a recrawl.
	MinDrop int
	// MinRate is the relative drop that triggers a recrawl.
	MinRate float64
}

// DefaultDropRule flags drops of 50 rows or 20% on a 100-row boundary.
var DefaultDropRule = DropRule{PageSize: 100, MinDrop: 50, MinRate: 0.2}

// Significant reports whether current is a suspicious drop from previous.
func (r DropRule) Significant(previous, current int) bool {
	if previous <= 0 || current >= previous {
		return false
	}
	if r.PageSize > 0 && current%r.PageSize != 0 {
		return false
	}
	diff := previous - current
	return diff >= r.MinDrop || float64(diff)/float64(previous) >= r.MinRate
}
