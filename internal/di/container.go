package di

import (
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/inbox-sweeper/internal/classify"
	"github.com/mikey/inbox-sweeper/internal/config"
	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/decision"
	"github.com/mikey/inbox-sweeper/internal/factory"
	"github.com/mikey/inbox-sweeper/internal/logging"
	"github.com/mikey/inbox-sweeper/internal/pipeline"
	"github.com/mikey/inbox-sweeper/internal/protection"
	"github.com/mikey/inbox-sweeper/internal/retry"
	"github.com/mikey/inbox-sweeper/internal/session"
	"github.com/mikey/inbox-sweeper/internal/utils"
)

// Options are the command line overrides applied on top of the config file
type Options struct {
	ConfigFile     string
	Verbose        bool
	InputFile      string
	DeleteApproved bool
}

// BuildContainer creates and configures a dependency injection container.
// Providers run lazily, so commands that only touch the session never
// construct an LLM client or open the mailbox.
func BuildContainer(opts Options) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return loadConfig(opts)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewMailboxFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewNotifierFactory); err != nil {
		return nil, err
	}

	// Register LLM client
	if err := container.Provide(func(f *factory.LLMFactory) (core.LLMClient, error) {
		return f.CreateLLMClient()
	}); err != nil {
		return nil, err
	}

	// Register sender cache
	if err := container.Provide(func(f *factory.CacheFactory) (factory.SenderCache, error) {
		return f.CreateSenderCache()
	}); err != nil {
		return nil, err
	}

	// Register mailbox
	if err := container.Provide(func(f *factory.MailboxFactory) (factory.Mailbox, error) {
		return f.CreateMailbox()
	}); err != nil {
		return nil, err
	}

	// Register notifier
	if err := container.Provide(func(f *factory.NotifierFactory) (core.Notifier, error) {
		return f.CreateNotifier()
	}); err != nil {
		return nil, err
	}

	// Register retry policy
	if err := container.Provide(func(cfg *config.Config) (retry.Policy, error) {
		rc, err := cfg.GetRetry()
		if err != nil {
			return retry.Policy{}, err
		}
		return retry.Policy{MaxAttempts: rc.MaxAttempts, BaseDelay: rc.BaseDelay, Multiplier: rc.Multiplier}, nil
	}); err != nil {
		return nil, err
	}

	// Register protected domain checker
	if err := container.Provide(newProtectionChecker); err != nil {
		return nil, err
	}

	// Register classifier
	if err := container.Provide(func(
		cfg *config.Config,
		llm core.LLMClient,
		sc factory.SenderCache,
		tp *utils.TextProcessor,
		policy retry.Policy,
		logger *zap.Logger,
	) (*classify.Classifier, error) {
		cacheCfg, err := cfg.GetCache()
		if err != nil {
			return nil, err
		}
		p := cfg.GetPipeline()
		return classify.NewClassifier(llm, sc.Cache, tp, classify.Options{
			VerificationThreshold: p.VerificationThreshold,
			VerifyBatchSize:       p.VerifyBatchSize,
			MaxPreviewSize:        p.MaxPreviewSize,
			HintTTL:               cacheCfg.TTL,
			Retry:                 policy,
		}, logger)
	}); err != nil {
		return nil, err
	}

	// Register decision engine
	if err := container.Provide(func(cfg *config.Config) *decision.Engine {
		return decision.NewEngine(cfg.GetPipeline().DeletionThreshold)
	}); err != nil {
		return nil, err
	}

	// Register session manager
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*session.Manager, error) {
		store, err := session.NewStore(cfg.GetSession().Dir)
		if err != nil {
			return nil, err
		}
		return session.NewManager(store, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register pipeline runner
	if err := container.Provide(func(
		cfg *config.Config,
		mb factory.Mailbox,
		protector *protection.Checker,
		notifier core.Notifier,
		classifier *classify.Classifier,
		engine *decision.Engine,
		sessions *session.Manager,
		policy retry.Policy,
		logger *zap.Logger,
	) (*pipeline.Runner, error) {
		p := cfg.GetPipeline()
		m := cfg.GetMetrics()
		textfile := ""
		if m.Enabled {
			textfile = m.Textfile
		}
		return pipeline.NewRunner(pipeline.Collaborators{
			Fetcher:    mb.Fetcher,
			Protector:  protector,
			Labels:     mb.Labels,
			Deleter:    mb.Deleter,
			Notifier:   notifier,
			Classifier: classifier,
		}, engine, sessions, pipeline.Options{
			ClassifyBatchSize: p.ClassifyBatchSize,
			DeleteApproved:    p.DeleteApproved,
			Retry:             policy,
			MetricsTextfile:   textfile,
		}, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

func loadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Set("logging.level", "debug")
		cfg.Set("logging.format", "console")
	}
	if opts.InputFile != "" {
		cfg.Set("mailbox.type", "file")
		cfg.Set("mailbox.input_file", opts.InputFile)
	}
	if opts.DeleteApproved {
		cfg.Set("pipeline.delete_approved", true)
	}
	if err := cfg.GetPipeline().Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newProtectionChecker merges the built-in list, the optional list file and
// the domains and patterns from the config
func newProtectionChecker(cfg *config.Config, logger *zap.Logger) (*protection.Checker, error) {
	builtin, err := protection.BuiltinList()
	if err != nil {
		return nil, err
	}
	lists := []protection.List{builtin}

	pc := cfg.GetProtection()
	if pc.ListFile != "" {
		l, err := protection.LoadListFile(pc.ListFile)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	if len(pc.Domains) > 0 || len(pc.Patterns) > 0 {
		lists = append(lists, protection.List{
			Categories: map[string][]string{"configured": pc.Domains},
			Patterns:   pc.Patterns,
		})
	}
	return protection.NewChecker(logger, lists...)
}
