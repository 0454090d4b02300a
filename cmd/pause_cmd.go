package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/surge-downloader/surge/internal/store"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a downloading task",
	Long:  `If the engine is running, pauses the task cooperatively through its live control server so the in-flight worker observes the pause flag. If the engine is not running, no worker can be mid-transfer, so the task's status is written directly.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Error: provide a task id or use --all")
			os.Exit(1)
		}

		s := openStore()
		defer s.Close()
		port := readActivePort()

		if all {
			tasks, err := s.List(store.StatusDownloading)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listing tasks: %v\n", err)
				os.Exit(1)
			}
			for _, t := range tasks {
				if err := pauseOne(s, port, t.ID); err != nil {
					fmt.Fprintf(os.Stderr, "Error pausing %s: %v\n", t.ID, err)
				}
			}
			fmt.Printf("Paused %d task(s).\n", len(tasks))
			return
		}

		id, err := resolveID(s, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := pauseOne(s, port, id); err != nil {
			fmt.Fprintf(os.Stderr, "Error pausing task: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Task %s paused.\n", id)
	},
}

func pauseOne(s *store.Store, port int, id string) error {
	if port != 0 {
		return requestDaemon(port, http.MethodPost, "/pause?id="+id)
	}
	task, err := s.Get(id)
	if err != nil {
		return err
	}
	if task.Status != store.StatusDownloading {
		return nil
	}
	task.Status = store.StatusPaused
	return s.Update(task)
}

func init() {
	rootCmd.AddCommand(pauseCmd)
	pauseCmd.Flags().Bool("all", false, "Pause every downloading task")
}
