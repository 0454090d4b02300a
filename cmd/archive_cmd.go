package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect and reuse archived (terminal) tasks",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived tasks, most recent first",
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		s := openStore()
		defer s.Close()

		archived, err := s.ListArchive()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing archive: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(archived, "", "  ")
			fmt.Println(string(data))
			return
		}

		if len(archived) == 0 {
			fmt.Println("Archive is empty.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILENAME\tSTATUS\tARCHIVED AT")
		for _, a := range archived {
			id := a.ID
			if len(id) > 8 {
				id = id[:8]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, filepath.Base(a.Filename), a.Status, time.Unix(a.ArchivedAt, 0).Local().Format(time.RFC3339))
		}
		w.Flush()
	},
}

var archiveCloneCmd = &cobra.Command{
	Use:   "clone <id>",
	Short: "Re-enqueue an archived task as a fresh PENDING task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		fresh, err := s.CloneFromArchive(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error cloning archived task: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Cloned into new task %s.\n", fresh.ID)
	},
}

func init() {
	archiveCmd.AddCommand(archiveListCmd, archiveCloneCmd)
	archiveListCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(archiveCmd)
}
