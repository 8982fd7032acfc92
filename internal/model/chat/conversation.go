package chat

import (
	"sort"
	"strings"
)

const conversationSeparator = "_"

// ConversationID derives the shared log id from two participant ids.
// Both participants get the same id regardless of argument order.
func ConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, conversationSeparator)
}
