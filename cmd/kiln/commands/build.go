package commands

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/ui/style"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the OCI image layout for the project",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := c.app.Build(cmd.Context(), app.BuildOptions{
				ConfigPath: v.GetString("config"),
				AppVersion: v.GetString("app-version"),
				Output:     v.GetString("output"),
				Base:       v.GetString("base"),
			})
			if err != nil {
				return err
			}
			printBuildSummary(cmd, result)
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", domain.ConfigFileName, "Path to the build configuration")
	cmd.Flags().String("app-version", "", "Version identifier bound into the image ("+EnvPrefix+"_APP_VERSION)")
	cmd.Flags().StringP("output", "o", "", "Directory the image layout is written to ("+EnvPrefix+"_OUTPUT)")
	cmd.Flags().String("base", "", "Base OCI image layout directory ("+EnvPrefix+"_BASE)")
	return cmd
}

func printBuildSummary(cmd *cobra.Command, result *domain.BuildResult) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, style.Heading.Render("Image ready"))
	_, _ = fmt.Fprintf(out, "  layout:      %s\n", result.Layout)
	_, _ = fmt.Fprintf(out, "  digest:      %s\n", result.ImageDigest)
	_, _ = fmt.Fprintf(out, "  packages:    %s\n", english.Plural(result.Installed, "distribution", ""))
	_, _ = fmt.Fprintf(out, "  user:        %s\n", result.Launch.User)
	_, _ = fmt.Fprintf(out, "  command:     %s\n", strings.Join(result.Launch.Cmd, " "))
	_, _ = fmt.Fprintf(out, "  fingerprint: %s\n", result.Fingerprint)
}

// newViper returns a viper instance reading KILN_ prefixed environment variables.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}
