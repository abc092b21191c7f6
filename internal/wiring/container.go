package wiring

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"response-broker/internal/clock"
	"response-broker/internal/config"
	"response-broker/internal/fallback"
	"response-broker/internal/integrations/paramstore"
	"response-broker/internal/provider"
	"response-broker/internal/repository"
	"response-broker/internal/usecase"
)

// Container holds the process-wide broker graph shared by every inbound
// transport (Lambda handler, CLI).
type Container struct {
	Config    config.Config
	Clock     clock.Clock
	Logger    *slog.Logger
	Specs     []provider.Spec
	Registry  *provider.Registry
	Quota     *fallback.Quota
	Sequencer *fallback.Sequencer
	Store     usecase.ConversationStore
	Broker    *usecase.Broker
	Jobs      *usecase.Jobs

	closers []func() error
}

// Overrides replaces external collaborators, mostly for tests.
type Overrides struct {
	Store       usecase.ConversationStore
	Credentials provider.CredentialSource
	Registry    *provider.Registry
	Clock       clock.Clock
}

// New builds the container from cfg. AWS configuration is only loaded when
// the DynamoDB store or the SSM credential source is needed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, ov Overrides) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clk := ov.Clock
	if clk == nil {
		clk = clock.SystemUTC{}
	}
	c := &Container{Config: cfg, Clock: clk, Logger: logger}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		loaded, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("wiring: load AWS config: %w", err)
		}
		awsCfg = &loaded
		return loaded, nil
	}

	specs, err := config.LoadCatalog(cfg.ProvidersFile)
	if err != nil {
		return nil, err
	}
	c.Specs = specs

	c.Registry = ov.Registry
	if c.Registry == nil {
		creds := ov.Credentials
		if creds == nil {
			if creds, err = credentialSource(cfg, loadAWS); err != nil {
				return nil, err
			}
		}
		c.Registry, err = provider.Build(ctx, specs, creds, provider.BuildOptions{
			Timeout:      cfg.ProviderTimeout,
			SystemPrompt: cfg.SystemPrompt,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("wiring: build providers: %w", err)
		}
	}
	if c.Registry.Len() == 0 {
		logger.Warn("no provider credentials found; every request will return the failure reply")
	}

	c.Quota = fallback.NewQuota(provider.DailyLimits(specs), cfg.ResetLocation, clk, logger)
	c.Sequencer, err = fallback.NewSequencer(c.Registry, c.Quota, fallback.NewCache(), logger)
	if err != nil {
		return nil, err
	}

	c.Store = ov.Store
	if c.Store == nil {
		if c.Store, err = c.openStore(cfg, loadAWS); err != nil {
			return nil, err
		}
	}

	builder, err := usecase.NewContextBuilder(c.Store, cfg.SystemPrompt, cfg.MaxContextChars)
	if err != nil {
		return nil, err
	}
	c.Broker, err = usecase.NewBroker(builder, c.Sequencer, c.Store,
		usecase.WithClock(clk),
		usecase.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	c.Jobs, err = usecase.NewJobs(c.Broker, c.Registry, cfg.ReflectionLocation, cfg.InsightChannel)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func credentialSource(cfg config.Config, loadAWS func() (aws.Config, error)) (provider.CredentialSource, error) {
	env := provider.EnvCredentials{Getenv: os.Getenv}
	if cfg.ParamPrefix == "" {
		return env, nil
	}
	awsCfg, err := loadAWS()
	if err != nil {
		return nil, err
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	params, err := provider.NewParamCredentials(ssmClient, cfg.ParamPrefix)
	if err != nil {
		return nil, err
	}
	return provider.ChainCredentials{params, env}, nil
}

func (c *Container) openStore(cfg config.Config, loadAWS func() (aws.Config, error)) (usecase.ConversationStore, error) {
	switch cfg.StoreBackend {
	case config.BackendBolt:
		s, err := repository.OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, s.Close)
		return s, nil
	default:
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		return repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	}
}

// StartBackground launches the daily quota reset loop; it stops with ctx.
func (c *Container) StartBackground(ctx context.Context) {
	go func() {
		if err := c.Quota.RunDailyReset(ctx); err != nil && ctx.Err() == nil {
			c.Logger.Error("quota reset loop stopped", "err", err)
		}
	}()
}

func (c *Container) Close() error {
	var first error
	for _, fn := range c.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
