package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/surge-downloader/surge/internal/config"
	"github.com/surge-downloader/surge/internal/engine"
	"github.com/surge-downloader/surge/internal/hls"
	"github.com/surge-downloader/surge/internal/httpclient"
	"github.com/surge-downloader/surge/internal/progress"
	"github.com/surge-downloader/surge/internal/worker"
)

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Control the background download engine",
}

var engineStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the engine in the foreground until stopped",
	Run: func(cmd *cobra.Command, args []string) {
		isMaster, err := AcquireLock()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error acquiring lock: %v\n", err)
			os.Exit(1)
		}
		if !isMaster {
			fmt.Fprintln(os.Stderr, "Error: the engine is already running.")
			os.Exit(1)
		}
		defer ReleaseLock()

		s := openStore()
		defer s.Close()

		settings, err := config.LoadSettings()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
			os.Exit(1)
		}

		deps := worker.Deps{
			Store:      s,
			HTTP:       httpclient.New(),
			HLS:        hls.New(),
			Aggregator: progress.NewAggregator(),
		}
		cfg := engine.Config{
			MaxParallel:  settings.Connections.MaxParallel,
			ScanInterval: time.Duration(settings.Performance.ScanInterval) * time.Millisecond,
			ScanBackoff:  time.Duration(settings.Performance.ScanBackoff) * time.Millisecond,
		}
		e := engine.New(s, deps, cfg)
		e.RegisterListener(engine.NewArchiveListener(s).OnEvent)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		e.Start(ctx)

		shutdownCh := make(chan struct{})
		port, ln := findAvailablePort(8090)
		if ln == nil {
			fmt.Fprintln(os.Stderr, "Error: could not find an available port for the control server")
			os.Exit(1)
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"status": "ok", "max_parallel": cfg.MaxParallel})
		})
		mux.HandleFunc("/pause", func(w http.ResponseWriter, r *http.Request) {
			id := r.URL.Query().Get("id")
			if id == "" {
				http.Error(w, "missing id", http.StatusBadRequest)
				return
			}
			if err := e.PauseTask(id); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		mux.HandleFunc("/shutdown", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			close(shutdownCh)
		})
		controlServer := &http.Server{Handler: mux}
		go controlServer.Serve(ln)

		saveActivePort(port)
		defer removeActivePort()

		fmt.Printf("surge engine %s running (control port %d, max_parallel %d)\n", Version, port, cfg.MaxParallel)
		fmt.Println("Press Ctrl+C to stop.")

		renderer := progress.NewRenderer(os.Stdout)
		rendererInterval := time.Duration(settings.Performance.RendererInterval) * time.Millisecond
		ticker := time.NewTicker(rendererInterval)
		defer ticker.Stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	renderLoop:
		for {
			select {
			case <-sigCh:
				break renderLoop
			case <-shutdownCh:
				break renderLoop
			case <-ticker.C:
				renderer.Render(deps.Aggregator.Snapshots(), deps.Aggregator.Total())
			}
		}

		fmt.Println("\nStopping engine...")
		controlServer.Close()
		cancel()
		e.Stop()
		e.Wait()
	},
}

var engineStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running engine",
	Run: func(cmd *cobra.Command, args []string) {
		port := readActivePort()
		if port == 0 {
			fmt.Println("Engine is not running.")
			return
		}
		if err := requestDaemon(port, http.MethodPost, "/shutdown"); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping engine: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Stop signal sent.")
	},
}

var engineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the engine is running",
	Run: func(cmd *cobra.Command, args []string) {
		port := readActivePort()
		if port == 0 {
			fmt.Println("Engine is not running.")
			return
		}
		fmt.Printf("Engine is running (control port %d).\n", port)
	},
}

func init() {
	engineCmd.AddCommand(engineStartCmd, engineStopCmd, engineStatusCmd)
	rootCmd.AddCommand(engineCmd)
}
