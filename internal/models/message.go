package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/replyforge/replyforge/internal/enum"
)

// Message is one entry of a conversation thread. Messages are append-only:
// the core never updates or deletes them. The autoincrement primary key is
// the message sequence number, so ordering by ID within a thread is arrival
// order.
type Message struct {
	ID        uint64                `gorm:"column:id;primaryKey;autoIncrement"`
	ThreadID  string                `gorm:"column:thread_id;type:varchar(255);index;not null"`
	TenantID  string                `gorm:"column:tenant_id;type:varchar(50);index;not null"`
	Mailbox   string                `gorm:"column:mailbox;type:varchar(255);index;not null"`
	Direction enum.MessageDirection `gorm:"column:direction;type:varchar(20);not null"`
	Sender    string                `gorm:"column:sender;type:varchar(255)"`
	Subject   string                `gorm:"column:subject;type:varchar(1000)"`
	Body      string                `gorm:"column:body;type:text"`

	// References carries the raw References header chain of inbound
	// messages for later inspection. Correlation itself only uses the
	// In-Reply-To value.
	References pq.StringArray `gorm:"column:references;type:text[]"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (Message) TableName() string {
	return "messages"
}

// InboundMessage is the parsed form of one unseen mailbox message, produced
// by the inbound mail transport. It only lives for the duration of a single
// processing call.
type InboundMessage struct {
	UID        uint32
	MessageID  string
	InReplyTo  string
	References []string
	From       string
	Subject    string
	Body       string
}
