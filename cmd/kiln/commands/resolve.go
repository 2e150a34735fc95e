package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/core/domain"
)

func (c *CLI) newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Project the lockfile into a flat, exactly pinned requirement list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			output, _ := cmd.Flags().GetString("output")

			list, err := c.app.Resolve(cmd.Context(), app.ResolveOptions{ConfigPath: configPath, Output: output})
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(list.Render())
			}
			return err
		},
	}
	cmd.Flags().StringP("config", "c", domain.ConfigFileName, "Path to the build configuration")
	cmd.Flags().StringP("output", "o", "", "File to write the requirement list to (default: stdout)")
	return cmd
}
