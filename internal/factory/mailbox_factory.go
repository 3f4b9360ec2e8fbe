package factory

import (
	"fmt"

	"github.com/mikey/inbox-sweeper/internal/adapters/mailbox"
	"github.com/mikey/inbox-sweeper/internal/config"
	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/utils"
	"go.uber.org/zap"
)

// Mailbox bundles the collaborators one mailbox source provides
type Mailbox struct {
	Fetcher core.Fetcher
	Labels  core.LabelState
	Deleter core.Deleter
	Close   func() error
}

// MailboxFactory creates mailbox sources based on configuration
type MailboxFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewMailboxFactory creates a new mailbox factory
func NewMailboxFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *MailboxFactory {
	return &MailboxFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateMailbox creates the configured mailbox source
func (f *MailboxFactory) CreateMailbox() (Mailbox, error) {
	mailboxCfg := f.cfg.GetMailbox()
	pipelineCfg := f.cfg.GetPipeline()

	switch mailboxCfg.Type {
	case "imap":
		imapCfg := f.cfg.GetIMAP()
		if imapCfg.Username == "" {
			return Mailbox{}, fmt.Errorf("imap.username is required")
		}
		m := mailbox.NewIMAPMailbox(mailbox.IMAPOptions{
			Host:         imapCfg.Host,
			Port:         imapCfg.Port,
			Username:     imapCfg.Username,
			Password:     imapCfg.Password,
			TLS:          imapCfg.TLS,
			Mailbox:      imapCfg.Mailbox,
			TrashMailbox: imapCfg.TrashMailbox,
			PageSize:     pipelineCfg.FetchPageSize,
			PreviewSize:  pipelineCfg.MaxPreviewSize,
			ManualLabels: pipelineCfg.ManualLabels,
		}, f.textProcessor, f.logger)
		return Mailbox{Fetcher: m, Labels: m, Deleter: m, Close: m.Close}, nil
	case "file":
		if mailboxCfg.InputFile == "" {
			return Mailbox{}, fmt.Errorf("mailbox.input_file is required for the file mailbox")
		}
		src := mailbox.NewFileSource(mailboxCfg.InputFile, pipelineCfg.FetchPageSize, pipelineCfg.MaxPreviewSize, f.textProcessor, f.logger)
		return Mailbox{
			Fetcher: src,
			Labels:  mailbox.NewSummaryLabels(pipelineCfg.ManualLabels),
			Deleter: src,
			Close:   func() error { return nil },
		}, nil
	default:
		return Mailbox{}, fmt.Errorf("unsupported mailbox type: %s", mailboxCfg.Type)
	}
}
