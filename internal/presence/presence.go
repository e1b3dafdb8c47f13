// Package presence provides core.PresenceTracker backends.
package presence

import (
	"sort"

	"github.com/vovakirdan/tweetchat-server/internal/core"
)

func sortByUserID(list []core.Presence) []core.Presence {
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list
}
