package realtime

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/xenn00/crew-chat/internal/entity"
)

type Table string

const (
	TableMessages     Table = "messages"
	TableMessageReads Table = "message_reads"
)

const EventInsert = "INSERT"

// ChangeEvent is a row-insert notification. Exactly one of Message or Read is set,
// matching Table.
type ChangeEvent struct {
	Table   Table               `msgpack:"table" json:"table"`
	Event   string              `msgpack:"event" json:"event"`
	GroupID string              `msgpack:"group_id" json:"group_id"`
	Message *entity.Message     `msgpack:"message,omitempty" json:"message,omitempty"`
	Read    *entity.MessageRead `msgpack:"read,omitempty" json:"read,omitempty"`
}

func MessageInserted(m entity.Message) ChangeEvent {
	return ChangeEvent{Table: TableMessages, Event: EventInsert, GroupID: m.GroupID, Message: &m}
}

func ReadInserted(r entity.MessageRead) ChangeEvent {
	return ChangeEvent{Table: TableMessageReads, Event: EventInsert, GroupID: r.GroupID, Read: &r}
}

func (e ChangeEvent) Validate() error {
	switch e.Table {
	case TableMessages:
		if e.Message == nil {
			return fmt.Errorf("realtime: %s event without message row", e.Table)
		}
	case TableMessageReads:
		if e.Read == nil {
			return fmt.Errorf("realtime: %s event without read row", e.Table)
		}
	default:
		return fmt.Errorf("realtime: unknown table %q", e.Table)
	}
	if e.GroupID == "" {
		return fmt.Errorf("realtime: event without group id")
	}
	return nil
}

func Encode(e ChangeEvent) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return msgpack.Marshal(&e)
}

func Decode(data []byte) (ChangeEvent, error) {
	var e ChangeEvent
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return ChangeEvent{}, fmt.Errorf("realtime: decode event: %w", err)
	}
	return e, e.Validate()
}

// ChannelName is the redis channel carrying change events for one group.
func ChannelName(groupID string) string {
	return "realtime:group:" + groupID
}

// SubscriptionTag names one client's subscription to a group.
func SubscriptionTag(groupID, userID string) string {
	return fmt.Sprintf("realtime:messages:%s:%s", groupID, userID)
}
