package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentfs/agentfs/internal/mount"
)

type mountFlags struct {
	autoUnmount bool
	allowRoot   bool
	foreground  bool
	uid         uint32
	gid         uint32
}

func newMountCmd(g *globalFlags) *cobra.Command {
	f := &mountFlags{}

	cmd := &cobra.Command{
		Use:   "mount <id-or-path> <mountpoint>",
		Short: "Mount an agent filesystem",
		Long: `Mount an agent filesystem through the AgentFS FSKit extension.

The first argument is an agent ID (stored as ~/.agentfs/<id>.db) or a path to
a database file. The mountpoint directory must already exist.

Requires macOS 26 or later with the AgentFS extension enabled.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.mountConfig()
			if err != nil {
				return err
			}

			req := mount.Request{
				Target:      args[0],
				Mountpoint:  args[1],
				AutoUnmount: f.autoUnmount,
				AllowRoot:   f.allowRoot,
				Foreground:  f.foreground,
			}
			if cmd.Flags().Changed("uid") {
				req.UID = &f.uid
			}
			if cmd.Flags().Changed("gid") {
				req.GID = &f.gid
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch := mount.NewOrchestrator(cfg, mount.WithOutput(cmd.ErrOrStderr()))
			return orch.Mount(ctx, req)
		},
	}

	cmd.Flags().BoolVar(&f.autoUnmount, "auto-unmount", false, "Automatically unmount when the process exits")
	cmd.Flags().BoolVar(&f.allowRoot, "allow-root", false, "Allow root to access the mount")
	cmd.Flags().BoolVarP(&f.foreground, "foreground", "f", false, "Stay in the foreground until unmounted")
	cmd.Flags().Uint32Var(&f.uid, "uid", 0, "User ID reported for all files")
	cmd.Flags().Uint32Var(&f.gid, "gid", 0, "Group ID reported for all files")
	return cmd
}
