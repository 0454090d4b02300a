package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/surge-downloader/surge/internal/clipboard"
	"github.com/surge-downloader/surge/internal/config"
	"github.com/surge-downloader/surge/internal/filesink"
	"github.com/surge-downloader/surge/internal/grabber"
	"github.com/surge-downloader/surge/internal/store"
)

var addCmd = &cobra.Command{
	Use:   "add <url>...",
	Short: "Add one or more URLs to the download queue",
	Long:  `Classifies each URL (direct file, HTML page, or stream) and enqueues every candidate it yields. Enqueued tasks are picked up by the next running "surge engine start" scan — no engine needs to be running to add work.`,
	Run: func(cmd *cobra.Command, args []string) {
		batchFile, _ := cmd.Flags().GetString("batch")
		outputDir, _ := cmd.Flags().GetString("output")
		useClipboard, _ := cmd.Flags().GetBool("clipboard")

		urls := append([]string{}, args...)
		if batchFile != "" {
			fileURLs, err := readURLsFromFile(batchFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading batch file: %v\n", err)
				os.Exit(1)
			}
			urls = append(urls, fileURLs...)
		}
		if useClipboard {
			if u := clipboard.ReadURL(); u != "" {
				urls = append(urls, u)
			}
		}
		urls = dedupeURLs(urls)

		if len(urls) == 0 {
			cmd.Help()
			return
		}

		if outputDir == "" {
			settings, err := config.LoadSettings()
			if err == nil && settings.General.DefaultDownloadDir != "" {
				outputDir = settings.General.DefaultDownloadDir
			} else {
				outputDir = config.GetDownloadsDir()
			}
		}
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
			os.Exit(1)
		}

		s := openStore()
		defer s.Close()

		g := grabber.New(nil)
		ctx := context.Background()
		added := 0
		for _, u := range urls {
			kind, candidates, err := g.Resolve(ctx, u)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error resolving %s: %v\n", u, err)
				continue
			}
			if len(candidates) == 0 {
				fmt.Fprintf(os.Stderr, "No downloadable items found for %s (%s)\n", u, kind)
				continue
			}
			for _, c := range candidates {
				dest := filesink.UniquePath(filepath.Join(outputDir, guessFilename(c.URL)))
				if _, err := s.Add(store.Task{URL: c.URL, Filename: dest}); err != nil {
					fmt.Fprintf(os.Stderr, "Error adding %s: %v\n", c.URL, err)
					continue
				}
				added++
			}
		}

		if added > 0 {
			fmt.Printf("Added %d download(s) to the queue.\n", added)
		}
	},
}

func dedupeURLs(urls []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		normalized := strings.TrimRight(strings.TrimSpace(u), "/")
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, u)
	}
	return out
}

func readURLsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	return urls, scanner.Err()
}

// guessFilename derives a best-effort destination basename from a URL's
// path. The worker writes to this name as-is: it passes it to
// httpclient.Probe as a filename hint, but does not use the filename the
// probe derives from the server's response.
func guessFilename(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "download"
	}
	name := filepath.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return name
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringP("batch", "b", "", "File containing URLs to add, one per line")
	addCmd.Flags().StringP("output", "o", "", "Output directory (defaults to configured download directory)")
	addCmd.Flags().Bool("clipboard", false, "Also add a URL found on the clipboard, if any")
}
