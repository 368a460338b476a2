package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/vip-ladder/tierbot/internal/app/roles"
	"github.com/vip-ladder/tierbot/internal/domain"
)

func init() {
	rootCmd.AddCommand(tiersCmd)
	tiersCmd.Flags().Int64P("count", "n", -1, "Resolve this message count onto the ladder")
}

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Show the tier ladder",
	Long:  `Print the configured tier ladder with each tier's role. With --count, also show where that count lands.`,
	Args:  cobra.NoArgs,
	RunE:  runTiers,
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	currentStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("42"))
)

func runTiers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tt, err := cfg.TierTable()
	if err != nil {
		return err
	}
	count, _ := cmd.Flags().GetInt64("count")

	highlight := -1
	if count >= 0 {
		if r := tt.Resolve(count); r.Qualified {
			highlight = r.Index
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ladderTable(tt, cfg.Bindings(), highlight))
	if count >= 0 {
		fmt.Fprintln(out, describeResolution(tt.Resolve(count)))
	}
	return nil
}

func ladderTable(tt *domain.TierTable, bindings []roles.TierGroupBinding, highlight int) string {
	rows := make([][]string, 0, tt.Len())
	for i, def := range tt.Definitions() {
		role := ""
		for _, b := range bindings {
			if b.TierName == def.Name {
				role = b.GroupID
			}
		}
		rows = append(rows, []string{strconv.Itoa(i), def.Name, strconv.FormatInt(def.Threshold, 10), role})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "TIER", "MESSAGES", "ROLE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == highlight:
				return currentStyle
			default:
				return cellStyle
			}
		}).
		String()
}

func describeResolution(r domain.Resolution) string {
	switch {
	case !r.Qualified:
		return fmt.Sprintf("%d messages: not ranked yet, %d more until %s", r.Count, r.Threshold-r.Count, r.Name)
	case r.AtMax:
		return fmt.Sprintf("%d messages: %s (top tier)", r.Count, r.Name)
	default:
		return fmt.Sprintf("%d messages: %s, %d more until %s", r.Count, r.Name, r.Remaining, r.NextName)
	}
}
