package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Reorder the active queue",
}

var queueMoveCmd = &cobra.Command{
	Use:   "move <id> up|down",
	Short: "Move a task one position up or down in queue order",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		direction := args[1]
		if direction != "up" && direction != "down" {
			fmt.Fprintln(os.Stderr, "Error: direction must be \"up\" or \"down\"")
			os.Exit(1)
		}

		s := openStore()
		defer s.Close()

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

		neighborOrder := task.QueueOrder - 1
		if direction == "down" {
			neighborOrder = task.QueueOrder + 1
		}
		neighbor, err := s.GetByQueueOrder(neighborOrder)
		if err != nil {
			fmt.Printf("Task %s is already at the %s of the queue.\n", id, edgeName(direction))
			return
		}

		if err := s.SwapQueueOrders(id, neighbor.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error moving task: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Moved task %s %s.\n", id, direction)
	},
}

func edgeName(direction string) string {
	if direction == "up" {
		return "top"
	}
	return "bottom"
}

var queueSwapCmd = &cobra.Command{
	Use:   "swap <a> <b>",
	Short: "Swap the queue positions of two tasks",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		idA, err := resolveID(s, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		idB, err := resolveID(s, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := s.SwapQueueOrders(idA, idB); err != nil {
			fmt.Fprintf(os.Stderr, "Error swapping tasks: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Swapped %s and %s.\n", idA, idB)
	},
}

func init() {
	queueCmd.AddCommand(queueMoveCmd, queueSwapCmd)
	rootCmd.AddCommand(queueCmd)
}
