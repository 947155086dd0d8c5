package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

const placeholderField = "-"

// MailFields builds the structured context every tenant-scoped log entry
// carries. Empty values are replaced with a placeholder so the field layout
// stays stable across entries.
func MailFields(mailbox, threadID string) []zap.Field {
	if mailbox == "" {
		mailbox = placeholderField
	}
	if threadID == "" {
		threadID = placeholderField
	}
	return []zap.Field{
		zap.String("mailbox", mailbox),
		zap.String("thread_id", threadID),
	}
}

// Registry hands out per-tenant loggers writing to dedicated file sinks.
// It is owned by the fleet lifecycle: loggers are created on first use and
// released when the owning tenant worker stops.
type Registry struct {
	cfg *Config
	dir string

	mu      sync.Mutex
	loggers map[string]Logger
}

func NewRegistry(cfg *Config, dir string) *Registry {
	return &Registry{
		cfg:     cfg,
		dir:     dir,
		loggers: make(map[string]Logger),
	}
}

// ForTenant returns the tenant's logger, creating it on first call. The sink
// is a file named after a tenant id prefix so log paths stay short.
func (r *Registry) ForTenant(tenantID string) Logger {
	r.mu.Lock()
	defer r.mu.Unlock()

	if log, ok := r.loggers[tenantID]; ok {
		return log
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		// Fall through: InitLogger reverts to stderr when the file
		// cannot be opened.
		fmt.Fprintf(os.Stderr, "cannot create log dir %s: %v\n", r.dir, err)
	}

	short := tenantID
	if len(short) > 8 {
		short = short[:8]
	}

	appLogger := &AppLogger{
		cfg:        r.cfg,
		outputPath: filepath.Join(r.dir, fmt.Sprintf("tenant_%s.log", short)),
		baseFields: []zap.Field{zap.String("tenant", tenantID)},
	}
	appLogger.InitLogger()

	r.loggers[tenantID] = appLogger
	return appLogger
}

// Release drops the tenant's cached logger. Called when the tenant worker is
// stopped so the registry does not grow without bound.
func (r *Registry) Release(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.loggers, tenantID)
}
