package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/models"
	"github.com/replyforge/replyforge/internal/tracing"
	"github.com/replyforge/replyforge/internal/utils"
)

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) interfaces.MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// Append inserts a message at the end of its thread. The autoincrement
// primary key assigns the sequence number.
func (r *messageRepository) Append(ctx context.Context, message *models.Message) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Append")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if message == nil {
		err := errors.New("message cannot be nil")
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagThread(span, message.ThreadID)
	if message.ThreadID == "" {
		err := errors.New("thread ID cannot be empty")
		tracing.TraceErr(span, err)
		return err
	}

	message.CreatedAt = utils.Now()

	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// ListThreadMessages returns the thread's messages ordered by sequence
// number ascending.
func (r *messageRepository) ListThreadMessages(ctx context.Context, threadID string) ([]*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.ListThreadMessages")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagThread(span, threadID)

	if threadID == "" {
		err := errors.New("thread ID cannot be empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return messages, nil
}

// FindThreadByReference checks whether any persisted message belongs to a
// thread with the given id. Returns "" when the reference is unknown.
func (r *messageRepository) FindThreadByReference(ctx context.Context, reference string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.FindThreadByReference")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if reference == "" {
		return "", nil
	}

	var threadID string
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("thread_id = ?", reference).
		Limit(1).
		Pluck("thread_id", &threadID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		tracing.TraceErr(span, err)
		return "", err
	}

	return threadID, nil
}
