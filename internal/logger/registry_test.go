package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMailFields_Defaults(t *testing.T) {
	// Act
	fields := MailFields("", "")

	// Assert
	assert.Equal(t, []zap.Field{
		zap.String("mailbox", "-"),
		zap.String("thread_id", "-"),
	}, fields)
}

func TestMailFields_Populated(t *testing.T) {
	// Act
	fields := MailFields("a@x.com", "thread-1")

	// Assert
	assert.Equal(t, zap.String("mailbox", "a@x.com"), fields[0])
	assert.Equal(t, zap.String("thread_id", "thread-1"), fields[1])
}

func TestRegistry_ForTenantCachesLogger(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	registry := NewRegistry(&Config{DevMode: true}, dir)

	// Act
	first := registry.ForTenant("ten_abcdef123456")
	second := registry.ForTenant("ten_abcdef123456")

	// Assert
	require.NotNil(t, first)
	assert.Same(t, first, second)
}

func TestRegistry_WritesToTenantFile(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	registry := NewRegistry(&Config{DevMode: true}, dir)

	// Act
	log := registry.ForTenant("ten_abcdef123456")
	log.Info("poller started")
	log.Logger().Sync()

	// Assert: log file is named after the tenant id prefix
	matches, err := filepath.Glob(filepath.Join(dir, "tenant_ten_abcd*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRegistry_ReleaseDropsCachedLogger(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	registry := NewRegistry(&Config{DevMode: true}, dir)
	first := registry.ForTenant("ten_1")

	// Act
	registry.Release("ten_1")
	second := registry.ForTenant("ten_1")

	// Assert
	assert.NotSame(t, first, second)
}
