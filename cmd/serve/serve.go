package serve

import (
	"context"
	"flag"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/remesas-ve/tasas/cmd/env"
	pipelineconfig "github.com/remesas-ve/tasas/pipeline/config"
	"github.com/remesas-ve/tasas/server/config"
)

// serveCfg wraps the serve configuration
type serveCfg struct {
	config   *config.Config
	pipeline *pipelineconfig.Config

	configPath         string
	pipelineConfigPath string
}

// NewServeCmd creates the serve subcommand
func NewServeCmd() *ffcli.Command {
	cfg := &serveCfg{
		config:   config.DefaultConfig(),
		pipeline: pipelineconfig.DefaultConfig(),
	}

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg.registerFlags(fs)

	cmd := &ffcli.Command{
		Name:       "serve",
		ShortUsage: "serve <subcommand> [flags]",
		LongHelp:   "Serves the tasas backend and its scrape pipeline",
		FlagSet:    fs,
		Exec: func(_ context.Context, _ []string) error {
			return flag.ErrHelp
		},
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}

	cmd.Subcommands = []*ffcli.Command{
		newServeSQLCmd(cfg),
		newServeMemoryCmd(cfg),
	}

	return cmd
}

func (c *serveCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.config.ListenAddress,
		"listen",
		config.DefaultListenAddress,
		"the IP:PORT URL for the server",
	)

	fs.StringVar(
		&c.configPath,
		"config",
		"",
		"the path to the server TOML configuration, if any",
	)

	fs.StringVar(
		&c.pipelineConfigPath,
		"pipeline-config",
		"",
		"the path to the pipeline TOML configuration, if any",
	)
}

// load reads the TOML configurations from disk, if any were given
func (c *serveCfg) load() error {
	if c.configPath != "" {
		serverCfg, err := config.Read(c.configPath)
		if err != nil {
			return err
		}

		c.config = serverCfg
	}

	if c.pipelineConfigPath != "" {
		pipelineCfg, err := pipelineconfig.Read(c.pipelineConfigPath)
		if err != nil {
			return err
		}

		c.pipeline = pipelineCfg
	}

	return pipelineconfig.ValidateConfig(c.pipeline)
}
