// Package commands implements the agentfs command line.
package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentfs/agentfs/internal/config"
	"github.com/agentfs/agentfs/internal/location"
	"github.com/agentfs/agentfs/internal/mount"
	"github.com/agentfs/agentfs/pkg/utils"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globalFlags holds the persistent flags and the configuration they load.
type globalFlags struct {
	configFile string
	logLevel   string
	cfg        *config.Configuration
}

// NewRootCmd builds the agentfs command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "agentfs",
		Short: "AgentFS - filesystem for agents",
		Long: `agentfs mounts agent filesystems through the FSKit extension and
lists the sandbox sessions running on this machine.

Use "agentfs [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load()
		},
	}

	root.PersistentFlags().StringVar(&g.configFile, "config", "", "Path to config file (default: $"+config.EnvConfigFile+")")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")

	root.AddCommand(newMountCmd(g))
	root.AddCommand(newPsCmd(g))
	root.AddCommand(newVersionCmd())
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (g *globalFlags) load() error {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Global.LogLevel = strings.ToUpper(g.logLevel)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if err := utils.SetupLogging(cfg.Global.LogConfig()); err != nil {
		return err
	}
	g.cfg = cfg
	utils.Logger().Debug("configuration loaded", zap.String("config", g.configFile))
	return nil
}

func (g *globalFlags) dirs() (location.Dirs, error) {
	return location.Dirs{
		AgentFS: g.cfg.Paths.AgentFSDir,
		Run:     g.cfg.Paths.RunDir,
	}.WithDefaults()
}

func (g *globalFlags) mountConfig() (*mount.Config, error) {
	dirs, err := g.dirs()
	if err != nil {
		return nil, err
	}
	m := g.cfg.Mount
	return &mount.Config{
		FSType:          m.FSType,
		MountTool:       m.MountTool,
		MinMajorVersion: m.MinMajorVersion,
		ExtensionIDs:    m.ExtensionIDs,
		PollInterval:    m.PollInterval,
		VersionTool:     m.VersionTool,
		ExtensionTool:   m.ExtensionTool,
		Dirs:            dirs,
	}, nil
}
