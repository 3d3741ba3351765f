package receipt

import (
	"math"
	"time"

	"github.com/xenn00/crew-chat/internal/stream"
)

// Summary is the read-receipt line rendered under a message.
type Summary struct {
	ReadCount  int
	Total      int
	Percent    int
	AllRead    bool
	LastReadAt time.Time
}

// Summarize counts distinct readers other than the author against the members other than
// the author.
func Summarize(v stream.View, memberIDs []string) Summary {
	author := v.Message.AuthorID

	total := 0
	for _, id := range memberIDs {
		if id != author {
			total++
		}
	}

	seen := make(map[string]struct{}, len(v.Reads))
	var last time.Time
	for _, r := range v.Reads {
		if r.UserID == author {
			continue
		}
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		if r.ReadAt.After(last) {
			last = r.ReadAt
		}
	}

	n := len(seen)
	denom := total
	if denom < 1 {
		denom = 1
	}
	return Summary{
		ReadCount:  n,
		Total:      total,
		Percent:    int(math.Round(float64(n) / float64(denom) * 100)),
		AllRead:    total > 0 && n >= total,
		LastReadAt: last,
	}
}
