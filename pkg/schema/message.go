package schema

import (
	"sort"
	"time"
)

// CommunityMessage is one entry of the shared community feed.
// IsSelf is set by the posting client and carries no identity.
type CommunityMessage struct {
	ID          string    `json:"id"`
	AuthorLabel string    `json:"authorLabel"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	IsSelf      bool      `json:"isSelf"`
	ColorTag    string    `json:"colorTag,omitempty"`
}

// SortMessages orders messages by timestamp ascending.
func SortMessages(msgs []CommunityMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// RecentMessages keeps the messages not older than since, sorted ascending, and truncates the
// result to the newest limit entries. A non-positive limit keeps everything.
func RecentMessages(msgs []CommunityMessage, since time.Time, limit int) []CommunityMessage {
	out := make([]CommunityMessage, 0, len(msgs))
	for _, m := range msgs {
		if !m.Timestamp.Before(since) {
			out = append(out, m)
		}
	}
	SortMessages(out)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
