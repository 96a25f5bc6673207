package domain

import "fmt"

// PRISMA funnel stage names. Each maps to exactly one counter in
// PRISMACounts and is set exactly once by its owning phase.
const (
	PRISMAFound             = "found"
	PRISMADuplicatesRemoved = "duplicates_removed"
	PRISMANoDupes           = "no_dupes"
	PRISMAScreened          = "screened"
	PRISMAFullTextAssessed  = "full_text_assessed"
	PRISMAIncluded          = "included"
)

// PRISMACounts tracks paper counts through the review funnel
// (found → deduplicated → screened → full-text assessed → included).
// Counts are set-once: a phase may not overwrite or decrease a count
// recorded by an earlier phase.
type PRISMACounts struct {
	Found             *int `json:"found,omitempty"`
	DuplicatesRemoved *int `json:"duplicates_removed,omitempty"`
	NoDupes           *int `json:"no_dupes,omitempty"`
	Screened          *int `json:"screened,omitempty"`
	FullTextAssessed  *int `json:"full_text_assessed,omitempty"`
	Included          *int `json:"included,omitempty"`
}

// funnelOrder lists the funnel counters that must be non-increasing,
// outermost first. duplicates_removed is a delta, not a funnel stage.
var funnelOrder = []string{
	PRISMAFound,
	PRISMANoDupes,
	PRISMAScreened,
	PRISMAFullTextAssessed,
	PRISMAIncluded,
}

func (p *PRISMACounts) slot(stage string) (**int, bool) {
	switch stage {
	case PRISMAFound:
		return &p.Found, true
	case PRISMADuplicatesRemoved:
		return &p.DuplicatesRemoved, true
	case PRISMANoDupes:
		return &p.NoDupes, true
	case PRISMAScreened:
		return &p.Screened, true
	case PRISMAFullTextAssessed:
		return &p.FullTextAssessed, true
	case PRISMAIncluded:
		return &p.Included, true
	default:
		return nil, false
	}
}

// Get returns the count for a stage, or -1 when it has not been set.
func (p *PRISMACounts) Get(stage string) int {
	slot, ok := p.slot(stage)
	if !ok || *slot == nil {
		return -1
	}
	return **slot
}

// Set records the count for a funnel stage. It fails when the stage name
// is unknown, the stage was already set to a different value, the count
// is negative, or the count would exceed the nearest outer funnel stage
// already recorded (the funnel only narrows).
func (p *PRISMACounts) Set(stage string, count int) error {
	slot, ok := p.slot(stage)
	if !ok {
		return fmt.Errorf("prisma: unknown stage %q", stage)
	}
	if count < 0 {
		return fmt.Errorf("prisma: stage %q count must be non-negative, got %d", stage, count)
	}
	if *slot != nil {
		if **slot == count {
			return nil // idempotent re-set of the same value
		}
		return fmt.Errorf("prisma: stage %q already set to %d, refusing %d", stage, **slot, count)
	}

	if err := p.checkFunnel(stage, count); err != nil {
		return err
	}

	v := count
	*slot = &v
	return nil
}

// checkFunnel enforces found ≥ no_dupes ≥ screened ≥ full_text_assessed ≥ included
// against whichever neighbours have already been recorded.
func (p *PRISMACounts) checkFunnel(stage string, count int) error {
	idx := -1
	for i, s := range funnelOrder {
		if s == stage {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil // delta counters are not part of the funnel chain
	}

	for i := idx - 1; i >= 0; i-- {
		if outer := p.Get(funnelOrder[i]); outer >= 0 {
			if count > outer {
				return fmt.Errorf("prisma: stage %q count %d exceeds %q count %d",
					stage, count, funnelOrder[i], outer)
			}
			break
		}
	}
	for i := idx + 1; i < len(funnelOrder); i++ {
		if inner := p.Get(funnelOrder[i]); inner >= 0 {
			if count < inner {
				return fmt.Errorf("prisma: stage %q count %d is below %q count %d",
					stage, count, funnelOrder[i], inner)
			}
			break
		}
	}
	return nil
}
