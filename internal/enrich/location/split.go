package location

import "strings"

// delimiters are tried in order; only the first one present is used
var delimiters = []string{"|", ";", "•", " and ", " or "}

// truncatedSuffix marks "+N more" artifacts of the upstream UI
const truncatedSuffix = " more"

// SplitCandidates splits a free-text location field into the sub-locations
// to resolve. When no delimiter matches, or every piece is a truncation
// artifact, the original string is the only candidate.
func SplitCandidates(location string) []string {
	var pieces []string
	for _, delim := range delimiters {
		if strings.Contains(location, delim) {
			pieces = strings.Split(location, delim)
			break
		}
	}

	candidates := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if strings.HasSuffix(piece, truncatedSuffix) {
			continue
		}
		candidates = append(candidates, piece)
	}

	if len(candidates) == 0 {
		return []string{location}
	}
	return candidates
}

// IsRemote reports whether a candidate denotes a remote position
func IsRemote(candidate string) bool {
	return strings.Contains(strings.ToLower(candidate), "remote")
}
