package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newLaunchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Run the process encoded in a built image layout on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			layout, _ := cmd.Flags().GetString("layout")
			workdir, _ := cmd.Flags().GetString("workdir")
			tty, _ := cmd.Flags().GetBool("tty")

			return c.app.Launch(cmd.Context(), app.LaunchOptions{
				Layout:  layout,
				WorkDir: workdir,
				TTY:     tty,
			}, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringP("layout", "l", "", "Image layout directory")
	cmd.Flags().String("workdir", "", "Override the working directory, for layouts unpacked outside the install root")
	cmd.Flags().Bool("tty", false, "Run the process on a pseudo-terminal")
	_ = cmd.MarkFlagRequired("layout")
	return cmd
}
