package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/avelkin/applyq/internal/config"
	"github.com/avelkin/applyq/internal/profile"
	"github.com/avelkin/applyq/internal/storage"
)

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the application queue",
}

var queueAddCmd = &cobra.Command{
	Use:   "add <job-id>",
	Short: "Approve a job and enqueue it for application",
	Long: `Approve a job and enqueue it for application.

Examples:
  applyq queue add lead-123 --url https://boards.greenhouse.io/acme/jobs/42 --title "Backend Engineer" --company Acme
  applyq queue add lead-456 --url https://linkedin.com/jobs/view/99 --score 0.87`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		applyURL, _ := cmd.Flags().GetString("url")
		title, _ := cmd.Flags().GetString("title")
		company, _ := cmd.Flags().GetString("company")
		description, _ := cmd.Flags().GetString("description")
		score, _ := cmd.Flags().GetFloat64("score")

		if applyURL == "" {
			return fmt.Errorf("--url is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := storage.JobLead{
			ID:          args[0],
			Title:       title,
			Company:     company,
			ApplyURL:    applyURL,
			Description: description,
			MatchScore:  score,
		}
		resp, err := client.post(cmd.Context(), "/queue", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued entry %s (%s)", result["id"], result["status"])
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue entries, newest last",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/queue?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []storage.Entry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		for _, e := range entries {
			title := e.Job.Title
			if title == "" {
				title = e.Job.ApplyURL
			}
			line := fmt.Sprintf("%s  %-9s  %s",
				colorize(colorCyan, e.ID[:8]),
				colorize(statusColor(string(e.Status)), string(e.Status)),
				title,
			)
			if e.Job.Company != "" {
				line += " @ " + e.Job.Company
			}
			if e.RetryCount > 0 {
				line += fmt.Sprintf("  (retries: %d)", e.RetryCount)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var queueShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single queue entry as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/queue/"+args[0])
		if err != nil {
			return err
		}

		var entry any
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Re-queue a failed entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/queue/"+args[0]+"/retry", nil)
		if err != nil {
			return err
		}

		var result map[string]bool
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Entry %s re-queued", args[0])
		return nil
	},
}

var queueCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/queue/"+args[0]+"/cancel", nil)
		if err != nil {
			return err
		}

		var result map[string]bool
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Entry %s cancelled", args[0])
		return nil
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/queue/stats")
		if err != nil {
			return err
		}

		var stats storage.QueueStats
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Pending", "%d", stats.Pending)
		printStatus("Claimed", "%d", stats.Claimed)
		printStatus("Completed", "%d", stats.Completed)
		printStatus("Failed", "%d", stats.Failed)
		printStatus("Skipped", "%d", stats.Skipped)
		return nil
	},
}

func init() {
	queueAddCmd.Flags().String("url", "", "application URL for the job (required)")
	queueAddCmd.Flags().String("title", "", "job title")
	queueAddCmd.Flags().String("company", "", "company name")
	queueAddCmd.Flags().String("description", "", "job description")
	queueAddCmd.Flags().Float64("score", 0, "match score from screening")
	queueListCmd.Flags().Int("limit", 50, "maximum number of entries to list")

	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueShowCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueCancelCmd)
	queueCmd.AddCommand(queueStatsCmd)
}

// --- live ---

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Control the live auto-apply driver",
}

var liveOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Enable live mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/live/enable", nil)
		if err != nil {
			return err
		}

		var result map[string]bool
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Live mode enabled; approved jobs will be applied to as they arrive")
		return nil
	},
}

var liveOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Disable live mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/live/disable", nil)
		if err != nil {
			return err
		}

		var result map[string]bool
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Live mode disabled")
		return nil
	},
}

var liveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show live driver status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/live/status")
		if err != nil {
			return err
		}

		var status struct {
			Enabled      bool               `json:"enabled"`
			PendingCount int                `json:"pendingCount"`
			IsProcessing bool               `json:"isProcessing"`
			CurrentJob   string             `json:"currentJob"`
			Stats        storage.QueueStats `json:"stats"`
		}
		if err := decodeJSON(resp, &status); err != nil {
			return err
		}

		if status.Enabled {
			printStatus("Live mode", "on")
		} else {
			printStatus("Live mode", "off")
		}
		if status.IsProcessing {
			printStatus("In flight", "%s", status.CurrentJob)
		}
		printStatus("Pending", "%d", status.PendingCount)
		printStatus("Completed", "%d", status.Stats.Completed)
		printStatus("Failed", "%d", status.Stats.Failed)
		return nil
	},
}

func init() {
	liveCmd.AddCommand(liveOnCmd)
	liveCmd.AddCommand(liveOffCmd)
	liveCmd.AddCommand(liveStatusCmd)
}

// --- batch ---

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Trigger batch queue processing",
}

var batchRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one pending entry, as the external scheduler would",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Queue.BatchSecret == "" {
			return fmt.Errorf("queue.batch_secret is not configured")
		}

		// The batch trigger authenticates with the scheduler secret, not
		// the management token, so it bypasses the regular API client.
		url := fmt.Sprintf("http://127.0.0.1:%d/batch/run", cfg.Server.Port)
		req, err := http.NewRequestWithContext(cmd.Context(), "POST", url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-Batch-Secret", cfg.Queue.BatchSecret)

		httpClient := &http.Client{Timeout: 90 * time.Second}
		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("server not reachable — is applyq running? (%w)", err)
		}

		var summary struct {
			Processed int    `json:"processed"`
			EntryID   string `json:"entryId"`
			JobID     string `json:"jobId"`
			Success   bool   `json:"success"`
			Error     string `json:"error"`
		}
		if err := decodeJSON(resp, &summary); err != nil {
			return err
		}

		if summary.Processed == 0 {
			fmt.Println("Queue is drained; nothing to process.")
			return nil
		}
		if summary.Success {
			printSuccess("Applied to job %s (entry %s)", summary.JobID, summary.EntryID)
		} else {
			printWarning("Attempt for job %s did not succeed: %s", summary.JobID, summary.Error)
		}
		return nil
	},
}

func init() {
	batchCmd.AddCommand(batchRunCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the applicant profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}

		var prof any
		if err := decodeJSON(resp, &prof); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(prof)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{key: value}
		resp, err := client.patch(cmd.Context(), "/profile", body)
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var profileResumeCmd = &cobra.Command{
	Use:   "resume <pdf-path>",
	Short: "Import resume text from a PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := profile.ExtractResumePDF(args[0])
		if err != nil {
			return fmt.Errorf("extracting resume text: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{"resume_text": text}
		resp, err := client.patch(cmd.Context(), "/profile", body)
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Imported resume from %s (%d characters)", args[0], len(text))
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileResumeCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
