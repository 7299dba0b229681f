package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaojiou176/quotio-sub003/internal/formatter"
	"github.com/xiaojiou176/quotio-sub003/internal/history"
	"github.com/xiaojiou176/quotio-sub003/internal/review"
)

var (
	historyWorkspace string
	historyLimit     int
)

var reviewHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List past review jobs, newest first",
	Long: `List the review jobs recorded under <workspace>/.quotio/review-queue.

Jobs without a summary.json (for example a run that was killed) are
reconstructed from the files in their directory.`,
	Args: cobra.NoArgs,
	RunE: runReviewHistory,
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one review job",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewShow,
}

func init() {
	reviewCmd.AddCommand(reviewHistoryCmd)
	reviewCmd.AddCommand(reviewShowCmd)

	for _, c := range []*cobra.Command{reviewHistoryCmd, reviewShowCmd} {
		c.Flags().StringVarP(&historyWorkspace, "workspace", "w", "", "Workspace (default: current directory)")
	}
	reviewHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show at most N jobs (0 = all)")
}

func historyDir() (string, error) {
	if historyWorkspace != "" {
		return historyWorkspace, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

func runReviewHistory(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	ws, err := historyDir()
	if err != nil {
		return err
	}
	jobs, err := history.List(ws)
	if err != nil {
		return err
	}
	if historyLimit > 0 && len(jobs) > historyLimit {
		jobs = jobs[:historyLimit]
	}

	if structured(cfg.Output) {
		if jobs == nil {
			jobs = []review.Summary{}
		}
		return writeStructured(os.Stdout, cfg.Output, jobs)
	}
	return printHistoryTable(jobs)
}

func printHistoryTable(jobs []review.Summary) error {
	tbl := formatter.NewTable(os.Stdout, "JOB", "PHASE", "WORKERS", "STAGES", "CREATED", "ERROR")
	tbl.SetMaxWidth(5, 60).SetEmptyMessage("No review jobs found.")
	for _, s := range jobs {
		tbl.AddRow(
			s.JobID,
			string(s.Phase),
			workerCounts(s),
			stages(s),
			formatTime(s.CreatedAt),
			s.Error,
		)
	}
	return tbl.Render()
}

func runReviewShow(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	ws, err := historyDir()
	if err != nil {
		return err
	}
	s, err := history.Find(ws, args[0])
	if err != nil {
		return err
	}
	if structured(cfg.Output) {
		return writeStructured(os.Stdout, cfg.Output, s)
	}
	return printSummary(s)
}

func printSummary(s *review.Summary) error {
	fmt.Printf("Job:       %s\n", s.JobID)
	fmt.Printf("Phase:     %s\n", s.Phase)
	fmt.Printf("Created:   %s\n", formatTime(s.CreatedAt))
	fmt.Printf("Updated:   %s\n", formatTime(s.UpdatedAt))
	if s.Model != "" {
		fmt.Printf("Model:     %s\n", s.Model)
	}
	fmt.Printf("Workers:   %s\n", workerCounts(*s))
	if s.AggregatePath != "" {
		fmt.Printf("Aggregate: %s\n", s.AggregatePath)
	}
	if s.FixPath != "" {
		fmt.Printf("Fix:       %s\n", s.FixPath)
	}
	if s.Error != "" {
		fmt.Printf("Error:     %s\n", s.Error)
	}
	if s.Version == 0 {
		fmt.Println("(reconstructed: no summary.json)")
	}
	fmt.Println()

	tbl := formatter.NewTable(os.Stdout, "ID", "STATUS", "PROMPT", "OUTPUT")
	tbl.SetMaxWidth(2, 50)
	for _, w := range s.Workers {
		tbl.AddRow(strconv.Itoa(w.ID), string(w.Status), w.Prompt, w.OutputPath)
	}
	return tbl.Render()
}

func workerCounts(s review.Summary) string {
	if s.FailedWorkerCount > 0 {
		return fmt.Sprintf("%d/%d (%d failed)", s.CompletedWorkerCount, s.WorkerCount, s.FailedWorkerCount)
	}
	return fmt.Sprintf("%d/%d", s.CompletedWorkerCount, s.WorkerCount)
}

func stages(s review.Summary) string {
	switch {
	case s.RunFix:
		return "review+aggregate+fix"
	case s.RunAggregate:
		return "review+aggregate"
	}
	return "review"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
