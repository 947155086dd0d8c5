package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/replyforge/replyforge/internal/utils"
)

// Tenant holds a customer's generation and metrics credentials plus the
// free-text reply instructions passed to the generation service. Tenants are
// created and updated by the administration surface; the worker fleet only
// reads them.
type Tenant struct {
	ID               string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	GenerationAPIKey string `gorm:"column:generation_api_key;type:varchar(255);not null" json:"-"`
	MetricsAPIKey    string `gorm:"column:metrics_api_key;type:varchar(255)" json:"-"`
	MetricsSite      string `gorm:"column:metrics_site;type:varchar(255);default:datadoghq.com" json:"metricsSite"`
	Instructions     string `gorm:"column:instructions;type:text" json:"instructions"`

	Mailboxes []MailboxAccount `gorm:"foreignKey:TenantID" json:"mailboxes"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Tenant) TableName() string {
	return "tenants"
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("ten", 16)
	}
	return nil
}

// MailboxAddresses returns the set of configured mailbox addresses. This is
// the desired state the tenant worker reconciles its pollers against.
func (t *Tenant) MailboxAddresses() map[string]MailboxAccount {
	accounts := make(map[string]MailboxAccount, len(t.Mailboxes))
	for _, account := range t.Mailboxes {
		accounts[account.Address] = account
	}
	return accounts
}
