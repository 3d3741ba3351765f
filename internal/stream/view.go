package stream

import (
	"github.com/xenn00/crew-chat/internal/entity"
)

// View is a read-only snapshot of one stream entry.
type View struct {
	Message entity.Message
	Reads   []entity.MessageRead
	Pending bool
}

func viewOf(e *entry) View {
	reads := make([]entity.MessageRead, len(e.reads))
	copy(reads, e.reads)
	return View{
		Message: e.msg,
		Reads:   reads,
		Pending: e.msg.IsPending(),
	}
}

func (v View) ReadBy() []string {
	ids := make([]string, 0, len(v.Reads))
	for _, r := range v.Reads {
		ids = append(ids, r.UserID)
	}
	return ids
}

func (v View) ReadByUser(userID string) bool {
	for _, r := range v.Reads {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// IsUnread is true when someone else wrote the message and userID has no read for it.
func (v View) IsUnread(userID string) bool {
	return v.Message.AuthorID != userID && !v.ReadByUser(userID)
}
