package services

import (
	"github.com/replyforge/replyforge/config"
	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/logger"
	"github.com/replyforge/replyforge/internal/repository"
	"github.com/replyforge/replyforge/services/events"
	"github.com/replyforge/replyforge/services/fleet"
	"github.com/replyforge/replyforge/services/generation"
	"github.com/replyforge/replyforge/services/imap"
	"github.com/replyforge/replyforge/services/metrics"
	"github.com/replyforge/replyforge/services/processor"
	"github.com/replyforge/replyforge/services/smtp"
)

type Services struct {
	Publisher         *events.RabbitMQPublisher
	GenerationService interfaces.GenerationService
	Sender            interfaces.OutboundSender
	Dialer            interfaces.InboundDialer
	MetricsFactory    interfaces.MetricsFactory
	LogRegistry       *logger.Registry
	FleetService      interfaces.FleetService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	// events are optional; without a broker URL replies are still sent,
	// only the delivered events are skipped
	var publisher *events.RabbitMQPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisherConfig := &events.PublisherConfig{
			MessageTTL:          events.DefaultMessageTTL,
			MaxRetries:          events.DefaultMaxRetries,
			PublishTimeout:      events.DefaultPublishTimeout,
			ReconnectBackoff:    events.DefaultReconnectBackoff,
			MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
		}

		var err error
		publisher, err = events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, publisherConfig)
		if err != nil {
			return nil, err
		}
	}

	registry := logger.NewRegistry(cfg.Logger, cfg.AppConfig.LogDir)
	metricsFactory := metrics.NewFactory(log)
	generator := generation.NewGenerationService(cfg.GenerationConfig)
	sender := smtp.NewSender()
	dialer := imap.NewDialer()

	// a typed nil pointer inside the interface would not compare equal
	// to nil, so the interface value is only set when a broker exists
	var replyPublisher processor.ReplyEventPublisher
	if publisher != nil {
		replyPublisher = publisher
	}

	fleetService := fleet.NewManager(
		repos.TenantRepository,
		repos.MessageRepository,
		generator,
		sender,
		dialer,
		metricsFactory,
		replyPublisher,
		registry,
		log,
		cfg.FleetConfig,
	)

	services := Services{
		Publisher:         publisher,
		GenerationService: generator,
		Sender:            sender,
		Dialer:            dialer,
		MetricsFactory:    metricsFactory,
		LogRegistry:       registry,
		FleetService:      fleetService,
	}

	return &services, nil
}
