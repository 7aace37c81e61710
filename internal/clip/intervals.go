package clip

// Span is a closed range of source audio in seconds.
type Span struct {
	Start float64
	End   float64
}

// Duration returns the length of s, never negative.
func (s Span) Duration() float64 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// Ranges accumulates spans in insertion order. Spans are never merged or
// removed; candidate clips hold tens of captions, so a linear scan is enough.
type Ranges []Span

// Add records a span.
func (r *Ranges) Add(start, end float64) {
	*r = append(*r, Span{Start: start, End: end})
}

// Contains reports whether point lies strictly inside a recorded span.
// Boundary points are not contained.
func (r Ranges) Contains(point float64) bool {
	for _, s := range r {
		if point > s.Start && point < s.End {
			return true
		}
	}
	return false
}
