package main

import (
	"github.com/spf13/cobra"
)

// buildJobsCmd creates the "jobs" command group for administering the cron
// job file.
func buildJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage scheduled cron jobs",
		Long: `Manage the cron job file the scheduler runs from.

Jobs use five-field cron schedules (minute hour day-of-month month
day-of-week). Each firing is delivered to the agent as a message on the
job's own cron channel.`,
	}
	cmd.AddCommand(
		buildJobsListCmd(),
		buildJobsValidateCmd(),
		buildJobsAddCmd(),
		buildJobsRemoveCmd(),
	)
	return cmd
}

// jobsFileFlags wires the shared --config/--file pair: the job file comes
// from the config unless --file overrides it.
func jobsFileFlags(cmd *cobra.Command, configPath, jobsFile *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", defaultConfigName,
		"Path to YAML configuration file")
	cmd.Flags().StringVarP(jobsFile, "file", "f", "",
		"Path to the jobs file (overrides the configured cron.jobs_file)")
}

func buildJobsListCmd() *cobra.Command {
	var configPath, jobsFile string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(cmd, resolveConfigPath(configPath), jobsFile)
		},
	}
	jobsFileFlags(cmd, &configPath, &jobsFile)
	return cmd
}

func buildJobsValidateCmd() *cobra.Command {
	var configPath, jobsFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the jobs file",
		Long:  "Check every job for a parseable schedule, a unique name, and a non-empty message.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsValidate(cmd, resolveConfigPath(configPath), jobsFile)
		},
	}
	jobsFileFlags(cmd, &configPath, &jobsFile)
	return cmd
}

func buildJobsAddCmd() *cobra.Command {
	var (
		configPath, jobsFile string
		userID               string
		disabled             bool
	)
	cmd := &cobra.Command{
		Use:   "add [name] [schedule] [message]",
		Short: "Add or replace a job",
		Example: `  # Morning briefing at 7am on weekdays
  aide jobs add briefing "0 7 * * 1-5" "Summarize my calendar and inbox"`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsAdd(cmd, resolveConfigPath(configPath), jobsFile,
				args[0], args[1], args[2], userID, !disabled)
		},
	}
	jobsFileFlags(cmd, &configPath, &jobsFile)
	cmd.Flags().StringVar(&userID, "user", "", "Canonical user id the job runs as")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Add the job without enabling it")
	return cmd
}

func buildJobsRemoveCmd() *cobra.Command {
	var configPath, jobsFile string
	cmd := &cobra.Command{
		Use:   "remove [name]",
		Short: "Remove a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsRemove(cmd, resolveConfigPath(configPath), jobsFile, args[0])
		},
	}
	jobsFileFlags(cmd, &configPath, &jobsFile)
	return cmd
}
