package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/replyforge/replyforge/internal/utils"
)

// MailboxAccount is one polled mailbox belonging to a tenant. ImapAddr and
// SmtpAddr are "host:port" endpoints; the same credential is used for both.
type MailboxAccount struct {
	ID       string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TenantID string `gorm:"column:tenant_id;type:varchar(50);index;uniqueIndex:idx_tenant_address;not null" json:"tenantId"`
	Address  string `gorm:"column:address;type:varchar(255);uniqueIndex:idx_tenant_address;not null" json:"address"`
	Password string `gorm:"column:password;type:varchar(255);not null" json:"-"`
	ImapAddr string `gorm:"column:imap_addr;type:varchar(255);not null" json:"imapAddr"`
	SmtpAddr string `gorm:"column:smtp_addr;type:varchar(255);not null" json:"smtpAddr"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (MailboxAccount) TableName() string {
	return "mailbox_accounts"
}

func (m *MailboxAccount) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("mbox", 16)
	}
	return nil
}
