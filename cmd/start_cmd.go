package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/surge-downloader/surge/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Mark a task (or every non-running task) ready to run",
	Long:  `Sets a task's status to PENDING so the next engine scan picks it up. Has no effect on a task already DOWNLOADING or COMPLETED.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Error: provide a task id or use --all")
			os.Exit(1)
		}

		s := openStore()
		defer s.Close()

		if all {
			tasks, err := s.List()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listing tasks: %v\n", err)
				os.Exit(1)
			}
			started := 0
			for _, t := range tasks {
				if t.Status == store.StatusDownloading || t.Status == store.StatusCompleted || t.Status == store.StatusPending {
					continue
				}
				t.Status = store.StatusPending
				if err := s.Update(t); err != nil {
					fmt.Fprintf(os.Stderr, "Error starting %s: %v\n", t.ID, err)
					continue
				}
				started++
			}
			fmt.Printf("Started %d task(s).\n", started)
			return
		}

		id, err := resolveID(s, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		task, err := s.Get(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if task.Status == store.StatusDownloading || task.Status == store.StatusCompleted {
			fmt.Printf("Task %s is already %s.\n", id, task.Status)
			return
		}
		task.Status = store.StatusPending
		if err := s.Update(task); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting task: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Task %s started.\n", id)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().Bool("all", false, "Start every non-running task")
}
