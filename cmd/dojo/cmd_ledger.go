package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"cyclesdojo/internal/ledger"
)

// ledgerCmd inspects the run ledger
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List recorded batches",
	Long: `Lists the batches in the run ledger, newest first.

Examples:
  dojo ledger
  dojo ledger show <batch-id>`,
	RunE: runLedgerList,
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show [batch-id]",
	Short: "Show run counts, merges and failed runs of a batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerShow,
}

func init() {
	ledgerCmd.AddCommand(ledgerShowCmd)
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(12)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

func openLedger() (*ledger.Ledger, error) {
	if _, err := os.Stat(cfg.Ledger.Path); err != nil {
		return nil, fmt.Errorf("no ledger at %s: %w", cfg.Ledger.Path, err)
	}
	return ledger.Open(cfg.Ledger.Path)
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	batches, err := l.Batches()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderBatches(batches))
	return nil
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	s, err := l.Summary(args[0])
	if err != nil {
		return err
	}
	failed, err := l.FailedRuns(args[0])
	if err != nil {
		return err
	}
	writeSummary(cmd.OutOrStdout(), s, failed)
	return nil
}

func renderBatches(batches []ledger.Batch) string {
	if len(batches) == 0 {
		return "No batches recorded.\n"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d batches", len(batches))) + "\n")
	for _, bt := range batches {
		fmt.Fprintf(&b, "%s  %-9s  %s  %d runs\n",
			bt.ID, bt.Kind, bt.StartedAt.Local().Format(time.DateTime), bt.Runs)
	}
	return b.String()
}

func writeSummary(w io.Writer, s ledger.Summary, failed []ledger.RunRecord) {
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}
	lines := []string{
		titleStyle.Render("Batch " + s.ID),
		row("kind", s.Kind),
		row("started", s.StartedAt.Local().Format(time.DateTime)),
		row("runs", fmt.Sprintf("%d", s.Runs)),
		row("ok", okStyle.Render(fmt.Sprintf("%d", s.Succeeded))),
	}
	if n := s.Failed + s.Killed + s.Unparsed; n > 0 {
		lines = append(lines, row("failed", failStyle.Render(
			fmt.Sprintf("%d (exit %d, killed %d, unparsed %d)", n, s.Failed, s.Killed, s.Unparsed))))
	}
	for _, m := range s.Merges {
		lines = append(lines, row("merge", fmt.Sprintf("%s rows %d -> %d, refs %d, dropped %d, unmatched %d",
			m.Crop, m.Before, m.After, m.References, m.Dropped, m.Unmatched)))
	}
	fmt.Fprintln(w, boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))

	for _, r := range failed {
		fmt.Fprintf(w, "%s %s.%s.%d %s: %s\n",
			failStyle.Render(string(r.Status)), r.Country, r.Crop, r.PlantingDay, r.Point, r.Message)
	}
}
