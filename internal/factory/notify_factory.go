package factory

import (
	"github.com/mikey/inbox-sweeper/internal/adapters/notify"
	"github.com/mikey/inbox-sweeper/internal/config"
	"github.com/mikey/inbox-sweeper/internal/core"
	"go.uber.org/zap"
)

// NotifierFactory creates the run-summary notifier
type NotifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewNotifierFactory creates a new notifier factory
func NewNotifierFactory(cfg *config.Config, logger *zap.Logger) *NotifierFactory {
	return &NotifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateNotifier returns nil when notifications are disabled
func (f *NotifierFactory) CreateNotifier() (core.Notifier, error) {
	notifyCfg, err := f.cfg.GetNotify()
	if err != nil {
		return nil, err
	}
	if !notifyCfg.Enabled {
		return nil, nil
	}
	return notify.NewSMTPNotifier(notifyCfg.SMTPAddress, notifyCfg.From, notifyCfg.To, notifyCfg.Timeout, f.logger), nil
}
