package config

import (
	"github.com/garyjia/expense-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Lark: container.LarkConfig{
			Enabled:   c.Lark.Enabled,
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			BaseURL:   c.Lark.BaseURL,
		},
		Approval: container.ApprovalConfig{
			MaxConflictRetries: c.Approval.MaxConflictRetries,
		},
		Notification: container.NotificationConfig{
			PollInterval: c.Notification.PollInterval,
			BatchSize:    c.Notification.BatchSize,
			MaxAttempts:  c.Notification.MaxAttempts,
			SendTimeout:  c.Notification.SendTimeout,
		},
		Metrics: container.MetricsConfig{
			Namespace: c.Metrics.Namespace,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}
