package cmd

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/surge-downloader/surge/internal/config"
)

// findAvailablePort tries ports starting from start until one binds.
func findAvailablePort(start int) (int, net.Listener) {
	for port := start; port < start+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return port, ln
		}
	}
	return 0, nil
}

func portFilePath() string {
	return filepath.Join(config.GetSurgeDir(), "port")
}

// saveActivePort records the engine daemon's control-server port so
// other CLI invocations can find it.
func saveActivePort(port int) {
	os.WriteFile(portFilePath(), []byte(fmt.Sprintf("%d", port)), 0644)
}

// readActivePort returns the daemon's port, or 0 if none is recorded or
// the daemon behind it is no longer reachable.
func readActivePort() int {
	data, err := os.ReadFile(portFilePath())
	if err != nil {
		return 0
	}
	var port int
	fmt.Sscanf(string(data), "%d", &port)
	if port == 0 {
		return 0
	}
	client := http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		return 0
	}
	resp.Body.Close()
	return port
}

func removeActivePort() {
	os.Remove(portFilePath())
}

// requestDaemon sends a control request to the running engine daemon.
func requestDaemon(port int, method, path string) error {
	req, err := http.NewRequest(method, fmt.Sprintf("http://127.0.0.1:%d%s", port, path), nil)
	if err != nil {
		return err
	}
	client := http.Client{Timeout: 3 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("engine daemon unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("engine daemon returned %s", resp.Status)
	}
	return nil
}
