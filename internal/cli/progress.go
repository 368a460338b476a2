package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(progressCmd)
}

var progressCmd = &cobra.Command{
	Use:   "progress USER_ID",
	Short: "Show a member's stored progress",
	Long: `Read a member's counter and acknowledged tier from the configured store.
This is the bot's own count, not Discord's search total.`,
	Args: cobra.ExactArgs(1),
	RunE: runProgress,
}

func runProgress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tt, err := cfg.TierTable()
	if err != nil {
		return err
	}

	repo, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	p, err := repo.GetProgress(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:          %s\n", p.UserID)
	fmt.Fprintf(out, "Messages:      %d\n", p.ActivityCount)
	if tt.Valid(p.AcknowledgedTier) {
		fmt.Fprintf(out, "Acknowledged:  %s\n", tt.At(p.AcknowledgedTier).Name)
	} else {
		fmt.Fprintln(out, "Acknowledged:  none")
	}
	if !p.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "Updated:       %s\n", p.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintln(out, describeResolution(tt.Resolve(p.ActivityCount)))
	return nil
}
