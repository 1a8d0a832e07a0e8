package transport

import (
	"errors"
	"fmt"
)

// ErrInterval is returned when an interval name can't be parsed
var ErrInterval = errors.New("unknown interval")

// Interval is a musical subdivision used for quantization and listener periods
type Interval int

const (
	Interval1n Interval = iota
	Interval2n
	Interval4n
	Interval4nt
	Interval8n
	Interval8nt
	Interval16n
	Interval16nt
	Interval32n
	Interval64n
)

// Intervals lists the selectable subdivisions in menu order (coarse to fine)
var Intervals = []Interval{
	Interval4n,
	Interval4nt,
	Interval8n,
	Interval8nt,
	Interval16n,
	Interval16nt,
	Interval32n,
	Interval64n,
}

var intervalNames = map[Interval]string{
	Interval1n:   "1n",
	Interval2n:   "2n",
	Interval4n:   "4n",
	Interval4nt:  "4nt",
	Interval8n:   "8n",
	Interval8nt:  "8nt",
	Interval16n:  "16n",
	Interval16nt: "16nt",
	Interval32n:  "32n",
	Interval64n:  "64n",
}

// number of intervals in a 4/4 measure
var standardCounts = map[Interval]int{
	Interval1n:   1,
	Interval2n:   2,
	Interval4n:   4,
	Interval4nt:  6,
	Interval8n:   8,
	Interval8nt:  12,
	Interval16n:  16,
	Interval16nt: 24,
	Interval32n:  32,
	Interval64n:  64,
}

func (i Interval) String() string {
	if name, ok := intervalNames[i]; ok {
		return name
	}
	return fmt.Sprintf("Interval(%d)", int(i))
}

// ParseInterval parses names like "16n" or "8nt"
func ParseInterval(name string) (Interval, error) {
	for iv, n := range intervalNames {
		if n == name {
			return iv, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInterval, name)
}

// CountInStandardMeasure returns how many of this interval fit in a 4/4 measure.
// Unknown intervals count as zero.
func (i Interval) CountInStandardMeasure() int {
	return standardCounts[i]
}

// Next returns the following selectable interval, wrapping around
func (i Interval) Next() Interval {
	for idx, iv := range Intervals {
		if iv == i {
			return Intervals[(idx+1)%len(Intervals)]
		}
	}
	return Interval16n
}
