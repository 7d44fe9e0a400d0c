package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anstrom/bannerscan/internal/config"
	"github.com/anstrom/bannerscan/internal/logging"
)

// configCmd represents the config command group.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage bannerscan configuration",
	Long: `Write a default configuration file, validate an existing one, or print the
effective configuration after environment variables are applied.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Example: `  bannerscan config init
  bannerscan config init /etc/bannerscan/bannerscan.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd, configShowCmd)
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
}

// getConfigFilePath returns the path named by args, --config, or the default.
func getConfigFilePath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if cfgFile != "" {
		return cfgFile
	}
	return defaultConfigName + ".yaml"
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := getConfigFilePath(args)

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists, use --force to overwrite", path)
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := getConfigFilePath(args)

	cfg, err := config.LoadStrict(path)
	if err != nil {
		return err
	}

	logging.Debug("Configuration validated", "path", path)
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d hosts, ports %d-%d, formats %v\n",
		path, len(cfg.Scan.Hosts), cfg.Scan.StartPort, cfg.Scan.EndPort, cfg.Report.Formats)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
