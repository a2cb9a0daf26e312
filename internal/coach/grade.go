package coach

import (
	"errors"
	"fmt"
)

// Grade is the qualitative band a score falls into.
type Grade int

const (
	// GradeNeedsPractice covers every score at or below the good threshold.
	GradeNeedsPractice Grade = iota

	// GradeGood covers scores above the good threshold and at or below the
	// excellent threshold.
	GradeGood

	// GradeExcellent covers scores above the excellent threshold.
	GradeExcellent
)

// String returns the grade's wire name.
func (g Grade) String() string {
	switch g {
	case GradeExcellent:
		return "excellent"
	case GradeGood:
		return "good"
	case GradeNeedsPractice:
		return "needs_practice"
	default:
		return fmt.Sprintf("Grade(%d)", int(g))
	}
}

// MarshalText encodes g as its wire name.
func (g Grade) MarshalText() ([]byte, error) {
	switch g {
	case GradeExcellent, GradeGood, GradeNeedsPractice:
		return []byte(g.String()), nil
	}
	return nil, fmt.Errorf("coach: invalid grade %d", int(g))
}

// UnmarshalText decodes a wire name produced by [Grade.MarshalText].
func (g *Grade) UnmarshalText(b []byte) error {
	switch string(b) {
	case "excellent":
		*g = GradeExcellent
	case "good":
		*g = GradeGood
	case "needs_practice":
		*g = GradeNeedsPractice
	default:
		return fmt.Errorf("coach: unknown grade %q", b)
	}
	return nil
}

// Message returns the feedback line shown next to the score.
func (g Grade) Message() string {
	switch g {
	case GradeExcellent:
		return "Excellent pronunciation!"
	case GradeGood:
		return "Good, but try to be clearer."
	default:
		return "Needs more practice."
	}
}

// Grader maps 0-100 scores to grades. A score strictly above Excellent is
// excellent and one strictly above Good is good. Setting Good equal to
// Excellent yields a two-band grader.
type Grader struct {
	Excellent int `json:"excellent" yaml:"excellent"`
	Good      int `json:"good" yaml:"good"`
}

// DefaultGrader returns the standard bands: above 85 is excellent, above 60
// is good.
func DefaultGrader() Grader {
	return Grader{Excellent: 85, Good: 60}
}

// Validate checks 0 <= Good <= Excellent <= 100.
func (g Grader) Validate() error {
	var errs []error
	if g.Good < 0 || g.Good > 100 {
		errs = append(errs, fmt.Errorf("good threshold %d outside [0, 100]", g.Good))
	}
	if g.Excellent < 0 || g.Excellent > 100 {
		errs = append(errs, fmt.Errorf("excellent threshold %d outside [0, 100]", g.Excellent))
	}
	if g.Good > g.Excellent {
		errs = append(errs, fmt.Errorf("good threshold %d above excellent threshold %d", g.Good, g.Excellent))
	}
	return errors.Join(errs...)
}

// Grade returns the band score falls into.
func (g Grader) Grade(score int) Grade {
	switch {
	case score > g.Excellent:
		return GradeExcellent
	case score > g.Good:
		return GradeGood
	default:
		return GradeNeedsPractice
	}
}
