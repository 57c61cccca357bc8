package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const sampleConfig = `# rosterwatch configuration
#
# The state database holds saved queries, snapshots, and change history.
state_path: .rosterwatch/state.db

# Target database the queries run against.
target:
  type: sqlite          # sqlite, duckdb, or postgres
  path: roster.db
  # host: localhost
  # port: 5432
  # database: roster
  # user: ${ROSTER_DB_USER}
  # password: ${ROSTER_DB_PASSWORD}

monitoring:
  interval: 168h        # weekly
  keep_snapshots: 10
  recipients:
    - address: coach-updates@example.com
      name: Coach Updates

# smtp:
#   host: smtp.example.com
#   port: "587"
#   username: ${SMTP_USER}
#   password: ${SMTP_PASSWORD}
#   from: rosterwatch@example.com
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a rosterwatch project",
		Long: `Write a starter rosterwatch.yaml into the given directory (default:
the current directory). Edit the target and smtp sections before the
first run.`,
		Example: `  # Initialize in the current directory
  rosterwatch init

  # Initialize in a new directory
  rosterwatch init my-roster

  # Overwrite an existing config
  rosterwatch init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			if dir != "." {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", dir, err)
				}
			}

			configPath := dir + "/rosterwatch.yaml"
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("rosterwatch.yaml already exists. Use --force to overwrite")
			}

			if err := os.WriteFile(configPath, []byte(sampleConfig), 0o600); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Edit the target section, then save a query with 'rosterwatch query save'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}
