package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().StringP("output", "o", "toml", "Output format: toml or yaml")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after defaults, the config file and environment overrides are applied. The bot token is masked.`,
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = cfg.Redacted()

	format, _ := cmd.Flags().GetString("output")
	var data []byte
	switch format {
	case "toml":
		data, err = cfg.Encode()
	case "yaml":
		data, err = yaml.Marshal(cfg)
	default:
		return fmt.Errorf("unknown output format %q (want toml or yaml)", format)
	}
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
