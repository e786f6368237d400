// Package servecmder provides the serve command that runs the chat endpoint.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/chatstream/cmd/chatstream/cmdutil"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/eventstream"
	eventstreamutils "github.com/papercomputeco/chatstream/pkg/eventstream/utils"
	"github.com/papercomputeco/chatstream/pkg/git"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/upstream"
	"github.com/papercomputeco/chatstream/proxy"
)

const serveLongDesc string = `Run the chat endpoint.

The server accepts chat requests on POST /api/chat, forwards them to the
configured OpenAI-compatible upstream and streams the reply back as
normalized server-sent events. GET /ping reports liveness.

The upstream API key is read from upstream.api_key, preferably supplied
through the CHATSTREAM_UPSTREAM_API_KEY environment variable.

Completed streams can be published to Kafka with --eventstream kafka.
With --log-file the terminal log is mirrored as JSON records to a file.

Examples:
  chatstream serve
  chatstream serve --listen :9090 --model openai/gpt-oss-120b
  chatstream serve --eventstream kafka --kafka-brokers localhost:9092
  chatstream serve --log-file chatstream.jsonl`

const serveShortDesc string = "Run the chat endpoint"

var serveFlags = []string{
	config.FlagListen,
	config.FlagProvider,
	config.FlagMaxMessageLength,
	config.FlagProject,
	config.FlagUpstream,
	config.FlagAPIKey,
	config.FlagModel,
	config.FlagSystemPrompt,
	config.FlagTimeout,
	config.FlagMaxTokens,
	config.FlagEventStream,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

type serveCommander struct {
	// Flag targets. Values are read back through viper so env and
	// config.toml apply when a flag is not given.
	listen           string
	provider         string
	maxMessageLength int
	project          string
	upstream         string
	apiKey           string
	model            string
	systemPrompt     string
	maxTokens        int
	eventStream      string
	kafkaBrokers     string
	kafkaTopic       string
	timeout          time.Duration

	logFile string
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := cmdutil.Load(cmd, serveFlags...)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), s, cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagProvider, &cmder.provider)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxMessageLength, &cmder.maxMessageLength)
	config.AddStringFlag(cmd, config.Flags, config.FlagProject, &cmder.project)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIKey, &cmder.apiKey)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagSystemPrompt, &cmder.systemPrompt)
	config.AddDurationFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxTokens, &cmder.maxTokens)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventStream, &cmder.eventStream)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON log records to this file")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, s *cmdutil.Settings, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, closeLog, err := c.logger(s, cmd)
	if err != nil {
		return err
	}
	defer closeLog()
	cfg := s.Config

	if cfg.Proxy.Project == "" {
		cfg.Proxy.Project = git.RepoName(ctx, "")
	}

	if cfg.Upstream.APIKey == "" {
		log.Warn("no upstream api key configured, chat requests will fail with 401")
	}

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: cfg.EventStream.Provider,
		Brokers:      cfg.EventStream.Brokers,
		Topic:        cfg.EventStream.Topic,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	p, err := proxy.New(ProxyConfig(cfg, publisher), log)
	if err != nil {
		_ = publisher.Close()
		return fmt.Errorf("creating proxy: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := p.Run(); err != nil {
			return fmt.Errorf("proxy error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			log.Info("received signal, shutting down")
		}
		return p.Close()
	})

	return g.Wait()
}

// logger pairs the terminal logger with a JSON file logger when --log-file
// is set.
func (c *serveCommander) logger(s *cmdutil.Settings, cmd *cobra.Command) (*slog.Logger, func(), error) {
	term := s.Logger(cmd.OutOrStdout(), false)
	if c.logFile == "" {
		return term, func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(
		logger.WithWriter(f),
		logger.WithJSON(true),
		logger.WithDebug(s.Debug),
		logger.WithSource(s.Debug),
	)
	return logger.Multi(term, file), func() { _ = f.Close() }, nil
}

// ProxyConfig maps the merged configuration onto the proxy.
func ProxyConfig(cfg *config.Config, publisher eventstream.Publisher) proxy.Config {
	opts := upstream.DefaultOptions()
	if cfg.Upstream.Model != "" {
		opts.Model = cfg.Upstream.Model
	}
	if cfg.Upstream.SystemPrompt != "" {
		opts.SystemPrompt = cfg.Upstream.SystemPrompt
	}
	if cfg.Upstream.Temperature != nil {
		opts.Temperature = *cfg.Upstream.Temperature
	}
	if cfg.Upstream.MaxTokens > 0 {
		opts.MaxTokens = cfg.Upstream.MaxTokens
	}
	if d := cfg.Upstream.TimeoutDuration(); d > 0 {
		opts.Timeout = d
	}

	return proxy.Config{
		ListenAddr:       cfg.Proxy.Listen,
		UpstreamURL:      cfg.Upstream.URL,
		APIKey:           cfg.Upstream.APIKey,
		ProviderType:     cfg.Proxy.Provider,
		Upstream:         opts,
		MaxMessageLength: cfg.Proxy.MaxMessageLength,
		Project:          cfg.Proxy.Project,
		Publisher:        publisher,
	}
}
