package fabric

import (
	"fmt"
	"strings"
)

// bridgeTag is the leading field of every bridge identity token. The full
// token is `b.<node_id>.<sequence>`; any other naming shape is never treated
// as belonging to an emulated node.
const bridgeTag = "b"

// BridgeName derives the identity token for a node's bridge. Whatever
// process later reconciles leftover kernel state matches on this exact
// format, so it must not drift.
func BridgeName(nodeID string, sequence int) string {
	return fmt.Sprintf("%s.%s.%d", bridgeTag, nodeID, sequence)
}

// MatchesNode reports whether a kernel bridge name is an identity token
// owned by the given node: exactly three dot-separated fields, the first
// the literal bridge tag, the second the node id.
func MatchesNode(name, nodeID string) bool {
	fields := strings.Split(name, ".")
	if len(fields) != 3 {
		return false
	}
	return fields[0] == bridgeTag && fields[1] == nodeID
}
