package repository

import (
	"gorm.io/gorm"

	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/models"
)

type Repositories struct {
	TenantRepository  interfaces.TenantRepository
	MessageRepository interfaces.MessageRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		TenantRepository:  NewTenantRepository(db),
		MessageRepository: NewMessageRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Tenant{},
		&models.MailboxAccount{},
		&models.Message{},
	)
}
