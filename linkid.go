package mapkit

import "github.com/google/uuid"

// newLinkID returns a fresh, collision-free link id (spec §3.1). The
// reader gives one to every Group and Entity it loads; a fresh id names
// a singleton family until it is shared with another node. Link ids are
// not always non-empty: newNode leaves a node's link id empty, and
// resetSubtreeLinkIDs clears a moved subtree's link ids to empty.
func newLinkID() string { return uuid.NewString() }
