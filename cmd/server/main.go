package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const version = "v1.0.0-dev"

type flags struct {
	port       string
	configPath string
	verbose    bool
}

func newCmd(f *flags) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("AATTO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "aatto",
		Short: "Real-time three-line poem battles",
		Long: `aatto matches players by rank and runs timed three-line poem duels
(composing, voting, result) over Socket.IO.

Settings come from the environment (PORT, FRONTEND_URL, DEFAULT_PROVIDER,
DEFAULT_MODEL, OPENAI_API_KEY, OLLAMA_HOST, DATABASE_DRIVER, DATABASE_URL,
COMPOSE_TIME, VOTE_TIME, FALLBACK_WAIT, THEMES, EXPORT_ENABLED, ...) and an
optional config file; environment variables win over the file.`,
		Args:    cobra.NoArgs,
		Version: version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVarP(&f.port, "port", "p", "", "port to listen on, overrides PORT")
	fs.StringVarP(&f.configPath, "config", "c", "", "path to a yaml, toml or json config file (env: AATTO_CONFIG)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging (env: AATTO_VERBOSE)")

	fs.VisitAll(func(fl *pflag.Flag) {
		_ = v.BindPFlag(fl.Name, fl)
		_ = v.BindEnv(fl.Name)
		if !fl.Changed && v.IsSet(fl.Name) {
			_ = fs.Set(fl.Name, fmt.Sprintf("%v", v.Get(fl.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("aatto {{.Version}}\n")
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}

func main() {
	if err := newCmd(&flags{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
