package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/models"
	"github.com/replyforge/replyforge/internal/tracing"
)

type tenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) interfaces.TenantRepository {
	return &tenantRepository{
		db: db,
	}
}

// ListTenantIDs returns the ids of all known tenants.
func (r *tenantRepository) ListTenantIDs(ctx context.Context) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tenantRepository.ListTenantIDs")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Pluck("id", &ids).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return ids, nil
}

// GetByID retrieves a tenant with its mailbox accounts preloaded. Returns
// nil without error when the tenant does not exist.
func (r *tenantRepository) GetByID(ctx context.Context, tenantID string) (*models.Tenant, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tenantRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenantID)

	if tenantID == "" {
		err := errors.New("tenant ID cannot be empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Preload("Mailboxes").
		Where("id = ?", tenantID).
		First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &tenant, nil
}
