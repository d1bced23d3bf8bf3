package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/tokengov/internal/logging"
)

// AddConfigCommand adds the config command group.
func AddConfigCommand(root *cobra.Command, s *session) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigShowCmd(s))
	root.AddCommand(cmd)
}

// newConfigShowCmd creates the 'config show' subcommand for displaying configuration.
func newConfigShowCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration",
		Long: `Display the effective tokengov configuration after merging defaults,
~/.tokengov/config.yaml, the project or --config file and TOKENGOV_*
environment variables. Paths are shown resolved. Credentials inside
redis_url are masked.

Examples:
  tokengov config show              # YAML
  tokengov config show --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *s.cfg
			cfg.Storage.RedisURL = logging.SafeValue("redis_url", cfg.Storage.RedisURL)

			out := newPrinter(cmd, s)
			if out.isJSON() {
				// Round-trip through YAML so keys and durations match the file format.
				raw, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				var doc map[string]any
				if err := yaml.Unmarshal(raw, &doc); err != nil {
					return err
				}
				return encodeJSONIndented(out.w, doc)
			}

			if s.configFile != "" {
				out.line("# loaded from %s", s.configFile)
			}
			enc := yaml.NewEncoder(out.w)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
