package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillet/pkg/logger"
	"github.com/jingkaihe/skillet/pkg/skills"
)

var rootCmd = &cobra.Command{
	Use:   "skillet",
	Short: "Install, check and remove agent skills",
	Long: `skillet discovers agent skills (directories containing a SKILL.md file) in
source repositories and copies them into the skill directories that agent
tools read from:

  claude  ~/.claude/skills  or ./.claude/skills
  codex   ~/.agents/skills  or ./.agents/skills`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupCommand,
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		return shutdownTracing(cmd.Context())
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return newUsageError(cmd, "%v", err)
	})

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt, json)")
	rootCmd.PersistentFlags().String("color", "", "Color output (auto, always, never)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only print summaries and errors")
	rootCmd.PersistentFlags().Int("description-width", skills.DefaultDescriptionWidth, "Maximum description length in listings")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("color", rootCmd.PersistentFlags().Lookup("color"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("description_width", rootCmd.PersistentFlags().Lookup("description-width"))
}

// initConfig loads .env from the working directory, then environment
// variables and the optional config file
func initConfig() {
	// existing environment variables win over .env entries
	_ = godotenv.Load()

	viper.SetEnvPrefix("SKILLET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.skillet")
	viper.AddConfigPath(".")

	// the config file is optional
	_ = viper.ReadInConfig()
}

func setupCommand(cmd *cobra.Command, _ []string) error {
	if err := logger.Configure(viper.GetString("log_level"), viper.GetString("log_format")); err != nil {
		return newUsageError(cmd, "%v", err)
	}

	ctx := logger.WithLogger(cmd.Context(), logger.L.WithField("command", cmd.Name()))
	if used := viper.ConfigFileUsed(); used != "" {
		logger.G(ctx).WithField("config", used).Debug("loaded config file")
	}

	if err := startTracing(ctx); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to initialize tracing")
	}
	cmd.SetContext(ctx)
	return nil
}

func run() int {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		p := newPresenter(rootCmd)
		p.Error(err, "")

		var usageErr *UsageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(rootCmd.ErrOrStderr(), "Run '%s --help' for usage.\n", usageErr.command)
		}
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
