package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/aide/internal/cron"
	"github.com/haasonsaas/aide/internal/storage"
	"github.com/haasonsaas/aide/pkg/models"
)

// resolveJobsFile picks the jobs file: an explicit --file wins, otherwise
// the configured cron.jobs_file.
func resolveJobsFile(configPath, jobsFile string) (string, error) {
	if strings.TrimSpace(jobsFile) != "" {
		return jobsFile, nil
	}
	cfg, err := loadServeConfig(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.Cron.JobsFile, nil
}

func runJobsList(cmd *cobra.Command, configPath, jobsFile string) error {
	path, err := resolveJobsFile(configPath, jobsFile)
	if err != nil {
		return err
	}
	store := cron.NewFileStore(path, nil)
	jobs, err := store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("read jobs file: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintf(out, "No jobs configured in %s.\n", path)
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCHEDULE\tENABLED\tNEXT RUN\tMESSAGE")
	for _, job := range jobs {
		next := "-"
		if sched, err := cron.Parse(job.Schedule); err == nil && job.Enabled {
			next = sched.Next(now).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
			job.Name, job.Schedule, job.Enabled, next, truncate(job.Message, 48))
	}
	return w.Flush()
}

func runJobsValidate(cmd *cobra.Command, configPath, jobsFile string) error {
	path, err := resolveJobsFile(configPath, jobsFile)
	if err != nil {
		return err
	}
	store := cron.NewFileStore(path, nil)
	jobs, err := store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("read jobs file: %w", err)
	}

	var issues []string
	seen := map[string]bool{}
	for i, job := range jobs {
		label := job.Name
		if strings.TrimSpace(label) == "" {
			label = fmt.Sprintf("job #%d", i+1)
			issues = append(issues, fmt.Sprintf("%s: name is required", label))
		}
		if seen[job.Name] {
			issues = append(issues, fmt.Sprintf("%s: duplicate name", label))
		}
		seen[job.Name] = true
		if _, err := cron.Parse(job.Schedule); err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", label, err))
		}
		if strings.TrimSpace(job.Message) == "" {
			issues = append(issues, fmt.Sprintf("%s: message is required", label))
		}
	}

	out := cmd.OutOrStdout()
	if len(issues) > 0 {
		for _, issue := range issues {
			fmt.Fprintln(out, issue)
		}
		return fmt.Errorf("%d issue(s) in %s", len(issues), path)
	}
	fmt.Fprintf(out, "%s: %d job(s), all valid.\n", path, len(jobs))
	return nil
}

func runJobsAdd(cmd *cobra.Command, configPath, jobsFile, name, schedule, message, userID string, enabled bool) error {
	path, err := resolveJobsFile(configPath, jobsFile)
	if err != nil {
		return err
	}
	store := cron.NewFileStore(path, nil)
	job := &models.CronJob{
		Name:     name,
		Schedule: schedule,
		Message:  message,
		Enabled:  enabled,
		UserID:   userID,
	}
	if err := store.Put(cmd.Context(), job); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved job %q to %s.\n", name, path)
	return nil
}

func runJobsRemove(cmd *cobra.Command, configPath, jobsFile, name string) error {
	path, err := resolveJobsFile(configPath, jobsFile)
	if err != nil {
		return err
	}
	store := cron.NewFileStore(path, nil)
	if err := store.Delete(cmd.Context(), name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no job named %q in %s", name, path)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed job %q from %s.\n", name, path)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
