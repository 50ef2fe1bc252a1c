package domain

import (
	"time"

	"github.com/google/uuid"
)

const ChannelTypeMessaging = "messaging"

// Channel is a direct-message conversation between exactly two users.
// Members is always stored sorted so the pair is unordered.
type Channel struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Members   [2]string `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// SortMembers returns the pair in canonical order.
func SortMembers(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// MembersKey identifies the unordered pair, e.g. "alice|bob".
func (c Channel) MembersKey() string {
	return c.Members[0] + "|" + c.Members[1]
}

func (c Channel) Has(userID string) bool {
	return c.Members[0] == userID || c.Members[1] == userID
}

// Other returns the member that is not userID.
func (c Channel) Other(userID string) string {
	if c.Members[0] == userID {
		return c.Members[1]
	}
	return c.Members[0]
}
