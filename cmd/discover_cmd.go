package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/surge-downloader/surge/internal/grabber"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <url>",
	Short: "Classify a URL and list its candidate downloads without enqueuing them",
	Long:  `Resolves a URL into its Kind (direct file, HTML page, or stream hint) and prints every candidate it yields. Nothing is added to the queue; use "add" once you've picked the URLs you want.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		filter, _ := cmd.Flags().GetString("filter")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		g := grabber.New(nil)
		kind, candidates, err := g.Resolve(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error discovering %s: %v\n", args[0], err)
			os.Exit(1)
		}

		fmt.Printf("Kind: %s\n", kind)
		if len(candidates) == 0 {
			fmt.Println("No candidates found.")
			return
		}

		shown := 0
		for _, c := range candidates {
			if filter != "" && !strings.Contains(c.URL, filter) {
				continue
			}
			fmt.Println(c.URL)
			shown++
		}
		if shown == 0 {
			fmt.Println("No candidates matched the filter.")
		}
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().String("filter", "", "Only show candidates whose URL contains this substring")
}
