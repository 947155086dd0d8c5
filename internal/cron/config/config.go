package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Fleet reconciliation, every 30 seconds
	CronScheduleFleetReconcile string `env:"CRON_SCHEDULE_FLEET_RECONCILE" envDefault:"@every 30s"`
}
