package dedup

import (
	"time"

	"github.com/roach88/bwdedup/internal/fingerprint"
)

// ItemRef identifies one item of the input by its original index, plus the
// revision timestamp the keeper strategies compare.
type ItemRef struct {
	Index        int
	Timestamp    time.Time
	HasTimestamp bool
}

// Group is every item sharing one fingerprint, in input order.
type Group struct {
	Fingerprint fingerprint.Fingerprint
	Members     []ItemRef
}

// Duplicate reports whether the group has more than one member.
func (g Group) Duplicate() bool {
	return len(g.Members) > 1
}

// GroupItems partitions refs by fingerprint. fps[i] is the fingerprint of
// refs[i]. Groups are returned in order of first occurrence.
func GroupItems(fps []fingerprint.Fingerprint, refs []ItemRef) []Group {
	positions := make(map[fingerprint.Fingerprint]int, len(fps))
	groups := make([]Group, 0, len(fps))

	for i, fp := range fps {
		pos, seen := positions[fp]
		if !seen {
			pos = len(groups)
			positions[fp] = pos
			groups = append(groups, Group{Fingerprint: fp})
		}
		groups[pos].Members = append(groups[pos].Members, refs[i])
	}
	return groups
}
