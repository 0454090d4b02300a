package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a task from the active queue",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		id, err := resolveID(s, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := s.Delete(id); err != nil {
			fmt.Fprintf(os.Stderr, "Error removing task: %v\n", err)
			os.Exit(1)
		}
		if err := s.NormalizeQueueOrder(); err != nil {
			fmt.Fprintf(os.Stderr, "Error normalizing queue order: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed task %s.\n", id)
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
