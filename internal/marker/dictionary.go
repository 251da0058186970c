package marker

import (
	"fmt"
	"sort"
)

// CodeSource identifies which ID-space a dictionary entry belongs to.
type CodeSource string

const (
	// SourceCustom marks entries loaded from the custom marker set.
	SourceCustom CodeSource = "custom"
	// SourceStandard marks entries from the generated standard dictionary.
	SourceStandard CodeSource = "standard"
)

// Entry is one canonical marker code with its identity.
type Entry struct {
	ID     int
	Code   BitGrid
	Source CodeSource
}

// DroppedEntry records a standard entry removed at build time because a
// custom entry claimed its ID or sat within decode range of its code.
type DroppedEntry struct {
	ID     int
	Code   BitGrid
	Reason string
}

// DictionaryConfig describes how to build a Dictionary.
type DictionaryConfig struct {
	GridSize     int             // interior cells per side (N)
	MaxBitErrors int             // Hamming error-correction budget
	StandardSize int             // number of standard entries to generate
	Seed         int64           // seed for the standard-code search
	Custom       map[int]BitGrid // custom marker set: ID → interior code
}

// Dictionary is the closed set of valid marker codes. It is built once and
// immutable afterwards, so concurrent decode calls may share it without
// synchronisation.
type Dictionary struct {
	n            int
	maxBitErrors int
	entries      []Entry
	byID         map[int]*Entry
	dropped      []DroppedEntry
}

// MatchResult reports the outcome of matching a sampled grid.
type MatchResult struct {
	ID       int
	Source   CodeSource
	Rotation int // quarter-turns clockwise applied to the sample to reach canonical
	Distance int // Hamming distance at the best rotation
}

// BuildDictionary constructs the merged custom+standard dictionary.
//
// The standard set is generated by the fixed seeded rule independently of
// the custom set, then merged under custom priority: a standard entry is
// dropped when a custom entry owns its ID, or when it sits within
// 2*MaxBitErrors of a custom code under any rotation (such an entry could
// steal decodes from the custom marker). Collisions between two custom
// entries have no priority rule to resolve them, so they fail the build.
func BuildDictionary(cfg DictionaryConfig) (*Dictionary, error) {
	n := cfg.GridSize
	if n < 3 || n > 8 {
		return nil, fmt.Errorf("grid size %d out of range [3, 8]", n)
	}
	bitCount := n * n
	if cfg.MaxBitErrors < 0 || cfg.MaxBitErrors >= bitCount/2 {
		return nil, fmt.Errorf("max bit errors %d out of range [0, %d)", cfg.MaxBitErrors, bitCount/2)
	}
	minSeparation := 2*cfg.MaxBitErrors + 1

	// Validate the custom set first: wrong grid size or intra-custom
	// rotation collisions are configuration errors, not runtime ones.
	customIDs := make([]int, 0, len(cfg.Custom))
	for id := range cfg.Custom {
		customIDs = append(customIDs, id)
	}
	sort.Ints(customIDs)

	customCodes := make([]BitGrid, 0, len(customIDs))
	for _, id := range customIDs {
		code := cfg.Custom[id]
		if id < 0 {
			return nil, fmt.Errorf("custom marker ID %d is negative", id)
		}
		if code.N != n {
			return nil, fmt.Errorf("custom marker %d has grid size %d, dictionary uses %d", id, code.N, n)
		}
		for j, prev := range customCodes {
			for _, rot := range prev.Rotations() {
				if d := code.Hamming(rot); d < minSeparation {
					return nil, fmt.Errorf("custom markers %d and %d collide under rotation (distance %d < %d)",
						customIDs[j], id, d, minSeparation)
				}
			}
		}
		customCodes = append(customCodes, code)
	}

	// Rotationally ambiguous custom markers still decode to the right ID,
	// just at an arbitrary rotation; worth a diagnostic, not an error.
	for i, code := range customCodes {
		rots := code.Rotations()
		for k := 1; k < 4; k++ {
			if code.Hamming(rots[k]) < minSeparation {
				diagf("[Dictionary] custom marker %d is near-symmetric under rotation %d (distance %d)",
					customIDs[i], k, code.Hamming(rots[k]))
				break
			}
		}
	}

	standardCodes, err := GenerateStandardCodes(n, cfg.StandardSize, cfg.Seed, minSeparation, nil)
	if err != nil {
		return nil, fmt.Errorf("standard dictionary generation failed: %w", err)
	}

	d := &Dictionary{
		n:            n,
		maxBitErrors: cfg.MaxBitErrors,
		entries:      make([]Entry, 0, len(customIDs)+len(standardCodes)),
		byID:         make(map[int]*Entry, len(customIDs)+len(standardCodes)),
	}

	// Custom entries first so iteration order encodes priority.
	for i, id := range customIDs {
		d.entries = append(d.entries, Entry{ID: id, Code: customCodes[i], Source: SourceCustom})
	}

	for id, code := range standardCodes {
		if _, claimed := cfg.Custom[id]; claimed {
			d.dropped = append(d.dropped, DroppedEntry{ID: id, Code: code, Reason: "id claimed by custom marker"})
			continue
		}
		if conflictID, conflict := nearestCustomConflict(code, customIDs, customCodes, minSeparation); conflict {
			d.dropped = append(d.dropped, DroppedEntry{
				ID:     id,
				Code:   code,
				Reason: fmt.Sprintf("within decode range of custom marker %d", conflictID),
			})
			continue
		}
		d.entries = append(d.entries, Entry{ID: id, Code: code, Source: SourceStandard})
	}

	for i := range d.entries {
		e := &d.entries[i]
		if prev, dup := d.byID[e.ID]; dup {
			return nil, fmt.Errorf("duplicate dictionary ID %d (%s vs %s)", e.ID, prev.Source, e.Source)
		}
		d.byID[e.ID] = e
	}

	if len(d.dropped) > 0 {
		diagf("[Dictionary] dropped %d standard entries in favour of custom markers", len(d.dropped))
	}
	return d, nil
}

// nearestCustomConflict reports the first custom entry whose code sits
// within minSeparation of the candidate under some rotation.
func nearestCustomConflict(code BitGrid, customIDs []int, customCodes []BitGrid, minSeparation int) (int, bool) {
	for i, custom := range customCodes {
		for _, rot := range custom.Rotations() {
			if code.Hamming(rot) < minSeparation {
				return customIDs[i], true
			}
		}
	}
	return 0, false
}

// N returns the grid size the dictionary was built for.
func (d *Dictionary) N() int { return d.n }

// MaxBitErrors returns the error-correction budget.
func (d *Dictionary) MaxBitErrors() int { return d.maxBitErrors }

// Len returns the number of live entries.
func (d *Dictionary) Len() int { return len(d.entries) }

// Entries returns a copy of the live entries, custom first then standard,
// each group ordered by ID.
func (d *Dictionary) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Dropped returns the standard entries removed at build time.
func (d *Dictionary) Dropped() []DroppedEntry {
	out := make([]DroppedEntry, len(d.dropped))
	copy(out, d.dropped)
	return out
}

// EntryByID returns the entry for the given ID.
func (d *Dictionary) EntryByID(id int) (Entry, bool) {
	e, ok := d.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Match finds the dictionary entry closest to the sampled grid across all
// four rotations. The result is deterministic: candidates are ordered by
// (distance, custom before standard, lower ID, lower rotation). The match
// is accepted only when the best distance is within MaxBitErrors; a false
// return is the normal outcome for non-marker quads, not an error.
func (d *Dictionary) Match(sample BitGrid) (MatchResult, bool) {
	if sample.N != d.n {
		return MatchResult{}, false
	}

	best := MatchResult{Distance: sample.N*sample.N + 1}
	found := false
	rots := sample.Rotations()

	for _, e := range d.entries {
		for rotIdx, rot := range rots {
			dist := rot.Hamming(e.Code)
			if dist > d.maxBitErrors {
				continue
			}
			if !found || betterMatch(dist, e, rotIdx, best) {
				best = MatchResult{ID: e.ID, Source: e.Source, Rotation: rotIdx, Distance: dist}
				found = true
			}
		}
	}
	return best, found
}

// betterMatch implements the deterministic candidate ordering.
func betterMatch(dist int, e Entry, rotIdx int, best MatchResult) bool {
	if dist != best.Distance {
		return dist < best.Distance
	}
	if e.Source != best.Source {
		return e.Source == SourceCustom
	}
	if e.ID != best.ID {
		return e.ID < best.ID
	}
	return rotIdx < best.Rotation
}
