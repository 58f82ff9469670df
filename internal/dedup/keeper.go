package dedup

import (
	"time"

	"github.com/roach88/bwdedup/internal/policy"
	"github.com/roach88/bwdedup/internal/value"
)

// SelectKeeper returns the member of a group that survives under keep.
// members must be non-empty and in input order.
//
// Items without a timestamp are older than any timestamped item. Ties on
// newest go to the highest index, ties on oldest to the lowest.
func SelectKeeper(members []ItemRef, keep policy.Keep) ItemRef {
	best := members[0]
	for _, candidate := range members[1:] {
		switch keep {
		case policy.KeepFirst:
			// members are ordered, the first never loses
		case policy.KeepLast:
			best = candidate
		case policy.KeepNewest:
			if compareTimestamps(candidate, best) >= 0 {
				best = candidate
			}
		case policy.KeepOldest:
			if compareTimestamps(candidate, best) < 0 {
				best = candidate
			}
		}
	}
	return best
}

// compareTimestamps orders refs by timestamp with missing timestamps first.
func compareTimestamps(a, b ItemRef) int {
	switch {
	case !a.HasTimestamp && !b.HasTimestamp:
		return 0
	case !a.HasTimestamp:
		return -1
	case !b.HasTimestamp:
		return 1
	default:
		return a.Timestamp.Compare(b.Timestamp)
	}
}

// timestampOf returns the first of keys that holds an RFC 3339 string.
// Keys are dotted paths resolved against the raw item, since the default
// ignore list strips revision dates from the canonical view.
func timestampOf(item value.Value, keys []value.Path) (time.Time, bool) {
	for _, key := range keys {
		s, ok := value.Resolve(item, key).(value.String)
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, string(s))
		if err != nil {
			continue
		}
		return ts, true
	}
	return time.Time{}, false
}
