package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/surge-downloader/surge/internal/utils"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active queue tasks",
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		s := openStore()
		defer s.Close()

		tasks, err := s.ListByQueueOrder()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing tasks: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(tasks, "", "  ")
			fmt.Println(string(data))
			return
		}

		if len(tasks) == 0 {
			fmt.Println("Queue is empty.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ORDER\tID\tFILENAME\tSTATUS\tPROGRESS\tSIZE")
		for _, t := range tasks {
			id := t.ID
			if len(id) > 8 {
				id = id[:8]
			}
			progress := "-"
			if t.HasTotal && t.Total > 0 {
				progress = fmt.Sprintf("%.1f%%", float64(t.Downloaded)*100/float64(t.Total))
			}
			size := "-"
			if t.HasTotal {
				size = utils.ConvertBytesToHumanReadable(t.Total)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", t.QueueOrder, id, filepath.Base(t.Filename), t.Status, progress, size)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Bool("json", false, "Output as JSON")
}
