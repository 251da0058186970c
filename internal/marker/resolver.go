package marker

import "sort"

// ResolveFrame collapses the raw per-candidate detections of one frame
// into at most one detection per marker ID. A marker printed once can
// still decode from several overlapping candidate quads (nested contours,
// near-duplicate approximations), so duplicates are the norm rather than
// an edge case.
//
// For each ID the detection with the fewest bit errors wins; on a tie the
// earliest detection in candidate order wins, which keeps resolution
// deterministic for a fixed extractor output. The result is ordered by ID.
func ResolveFrame(detections []Detection) []Detection {
	if len(detections) == 0 {
		return nil
	}

	bestByID := make(map[int]Detection, len(detections))
	for _, det := range detections {
		prev, seen := bestByID[det.ID]
		if !seen || det.BitErrors < prev.BitErrors {
			bestByID[det.ID] = det
		}
	}

	resolved := make([]Detection, 0, len(bestByID))
	for _, det := range bestByID {
		resolved = append(resolved, det)
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].ID < resolved[j].ID })

	if dropped := len(detections) - len(resolved); dropped > 0 {
		tracef("[Resolver] collapsed %d detections to %d unique IDs", len(detections), len(resolved))
	}
	return resolved
}
