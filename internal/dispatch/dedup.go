package dispatch

import (
	"crypto/sha256"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ReplyDedup tracks the digest of the last content delivered to each user so
// identical consecutive replies are suppressed. Bounded by cap and TTL.
type ReplyDedup struct {
	last *expirable.LRU[string, [sha256.Size]byte]
}

func NewReplyDedup(ttl time.Duration, max int) *ReplyDedup {
	return &ReplyDedup{
		last: expirable.NewLRU[string, [sha256.Size]byte](max, nil, ttl),
	}
}

// ShouldSend reports whether content differs from the last delivered content
// for this user. Exact byte equality is what is checked, via digest.
func (r *ReplyDedup) ShouldSend(userID, content string) bool {
	prev, ok := r.last.Get(userID)
	if !ok {
		return true
	}
	return prev != digest(content)
}

// RecordSent stores the digest of content. Call only after a confirmed
// successful delivery.
func (r *ReplyDedup) RecordSent(userID, content string) {
	r.last.Add(userID, digest(content))
}

func digest(content string) [sha256.Size]byte {
	return sha256.Sum256([]byte(content))
}
