package entropy

import (
	"time"
)

// Point is one dated entropy reading. Invalid marks a window whose
// correlation matrix was numerically degenerate; Value carries no
// meaning then and must not enter thresholds or statistics.
type Point struct {
	Date    time.Time
	Value   float64
	Invalid bool
}

// Series is the dated entropy output of one market, points in
// ascending date order with gaps kept explicit.
type Series struct {
	Market string
	Points []Point
}

// Len returns the number of points, gaps included
func (s *Series) Len() int {
	return len(s.Points)
}

// At returns the i-th point as (date, value, valid). It implements the
// signal source contract shared with the volatility baseline.
func (s *Series) At(i int) (time.Time, float64, bool) {
	p := s.Points[i]
	return p.Date, p.Value, !p.Invalid
}

// Valid returns the valid points only, in order
func (s *Series) Valid() []Point {
	var out []Point
	for _, p := range s.Points {
		if !p.Invalid {
			out = append(out, p)
		}
	}
	return out
}

// Values returns the valid entropy values only, in date order
func (s *Series) Values() []float64 {
	var out []float64
	for _, p := range s.Points {
		if !p.Invalid {
			out = append(out, p.Value)
		}
	}
	return out
}

// Gaps returns the number of invalid points
func (s *Series) Gaps() int {
	n := 0
	for _, p := range s.Points {
		if p.Invalid {
			n++
		}
	}
	return n
}

// Before returns the sub-series strictly before the boundary date
func (s *Series) Before(boundary time.Time) *Series {
	out := &Series{Market: s.Market}
	for _, p := range s.Points {
		if p.Date.Before(boundary) {
			out.Points = append(out.Points, p)
		}
	}
	return out
}

// From returns the sub-series on or after the boundary date
func (s *Series) From(boundary time.Time) *Series {
	out := &Series{Market: s.Market}
	for _, p := range s.Points {
		if !p.Date.Before(boundary) {
			out.Points = append(out.Points, p)
		}
	}
	return out
}

// First returns the earliest stamped date
func (s *Series) First() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[0].Date
}

// Last returns the latest stamped date
func (s *Series) Last() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Date
}
