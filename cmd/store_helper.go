package cmd

import (
	"fmt"
	"os"

	"github.com/surge-downloader/surge/internal/config"
	"github.com/surge-downloader/surge/internal/store"
)

// openStore opens the shared task database every command reads and
// writes. There is no per-command network hop: the engine daemon and
// every CLI invocation share one SQLite file, so `add` or `remove` take
// effect on the next scan even if no engine is running yet.
func openStore() *store.Store {
	if err := config.EnsureDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	s, err := store.Open(config.GetDBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return s
}

// resolveID resolves an id prefix of any length to the one active task it
// uniquely identifies. A prefix matching several tasks is an error; the
// input comes back unchanged when it is already full length (36+ chars),
// matches nothing, or the task list cannot be read.
func resolveID(s *store.Store, partial string) (string, error) {
	if len(partial) >= 36 {
		return partial, nil
	}
	tasks, err := s.List()
	if err != nil {
		return partial, nil
	}
	var matches []string
	for _, t := range tasks {
		if len(t.ID) >= len(partial) && t.ID[:len(partial)] == partial {
			matches = append(matches, t.ID)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("ambiguous id prefix %q matches %d tasks", partial, len(matches))
	}
	return partial, nil
}
