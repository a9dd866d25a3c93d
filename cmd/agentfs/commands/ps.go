package commands

import (
	"github.com/spf13/cobra"

	"github.com/agentfs/agentfs/internal/cli/output"
	"github.com/agentfs/agentfs/internal/session"
)

func newPsCmd(g *globalFlags) *cobra.Command {
	var all bool
	var format string

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List sandbox sessions",
		Long: `List the sandbox sessions under ~/.agentfs/run.

By default only running (mounted) sessions are shown. Use -a to include
stopped sessions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			dirs, err := g.dirs()
			if err != nil {
				return err
			}

			reg := session.NewRegistry(dirs.Run, nil)
			sessions, err := reg.List(all)
			if err != nil {
				return err
			}
			return session.Render(cmd.OutOrStdout(), f, sessions, all, reg.RunDir())
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show all sessions, including stopped ones")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format (table|json|yaml)")
	return cmd
}
