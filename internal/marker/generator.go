package marker

import (
	"fmt"
	"math/rand"
)

// Standard-code generation. The live marker set mixes a small custom set
// with a larger generated dictionary (IDs 0..size-1). Codes are produced
// by a deterministic seeded search: candidates are drawn from a fixed
// PRNG stream and accepted only when they keep a minimum Hamming
// separation from every already-accepted code under all four rotations,
// and from their own rotations. A separation of 2*maxBitErrors+1
// guarantees that error correction up to maxBitErrors bits can never
// cross over into a neighbouring entry, and that the decoded rotation is
// unambiguous.

// maxGenerationAttempts bounds the candidate search per entry. With 36-bit
// codes and the default separation the acceptance rate is high; hitting
// this limit means the requested dictionary is too dense for the grid.
const maxGenerationAttempts = 100000

// GenerateStandardCodes deterministically generates `count` N×N codes with
// pairwise rotation-separation of at least minSeparation, skipping any
// candidate too close to one of the reserved codes (the custom set).
// The same (n, count, seed, minSeparation, reserved) always yields the
// same codes.
func GenerateStandardCodes(n, count int, seed int64, minSeparation int, reserved []BitGrid) ([]BitGrid, error) {
	if n < 3 || n > 8 {
		return nil, fmt.Errorf("grid size %d out of range [3, 8]", n)
	}
	bitCount := n * n
	if minSeparation >= bitCount {
		return nil, fmt.Errorf("min separation %d impossible for %d-bit codes", minSeparation, bitCount)
	}

	rng := rand.New(rand.NewSource(seed))
	mask := uint64(1)<<uint(bitCount) - 1

	accepted := make([]BitGrid, 0, count)
	for len(accepted) < count {
		found := false
		for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
			cand := BitGrid{N: n, Code: rng.Uint64() & mask}

			// Reject near-uniform candidates: a mostly-black or
			// mostly-white interior is easy to confuse with paper
			// edges and border rings.
			ones := cand.OnesCount()
			if ones < bitCount/4 || ones > bitCount*3/4 {
				continue
			}

			if !separated(cand, accepted, reserved, minSeparation) {
				continue
			}

			accepted = append(accepted, cand)
			found = true
			break
		}
		if !found {
			return nil, fmt.Errorf("code generation stalled at %d/%d entries (separation %d too strict for %d bits)",
				len(accepted), count, minSeparation, bitCount)
		}
	}
	return accepted, nil
}

// separated reports whether cand keeps minSeparation Hamming distance from
// its own non-identity rotations and from every rotation of the accepted
// and reserved codes.
func separated(cand BitGrid, accepted, reserved []BitGrid, minSeparation int) bool {
	rots := cand.Rotations()

	// Self-rotation distinctness: without this a symmetric code would
	// decode at multiple rotations with equal distance.
	for i := 1; i < 4; i++ {
		if cand.Hamming(rots[i]) < minSeparation {
			return false
		}
	}

	// Comparing cand against every rotation of the other code covers all
	// relative rotations of the pair.
	for _, set := range [2][]BitGrid{accepted, reserved} {
		for _, other := range set {
			for _, rot := range other.Rotations() {
				if cand.Hamming(rot) < minSeparation {
					return false
				}
			}
		}
	}
	return true
}
