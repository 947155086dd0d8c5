package interfaces

import (
	"context"

	"github.com/replyforge/replyforge/internal/models"
)

// TenantRepository is the read side of the tenant configuration store.
// Absent records are reported as nil, not as errors.
type TenantRepository interface {
	ListTenantIDs(ctx context.Context) ([]string, error)
	GetByID(ctx context.Context, tenantID string) (*models.Tenant, error)
}

// MessageRepository persists conversation threads. Messages are append-only;
// no update or delete operations exist.
type MessageRepository interface {
	Append(ctx context.Context, message *models.Message) error
	ListThreadMessages(ctx context.Context, threadID string) ([]*models.Message, error)
	// FindThreadByReference returns the thread id matching the reference,
	// or "" when no such thread exists.
	FindThreadByReference(ctx context.Context, reference string) (string, error)
}
