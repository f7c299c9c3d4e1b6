package testutils

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// integrationGate is the env flag that enables the black-box suite. The
// suite spawns the real binary and therefore needs Postgres, Kafka and
// Redis reachable at the addresses the service's config defaults (or the
// APP_* environment) point at.
const integrationGate = "TRADEFLOW_IT"

// RequireIntegration skips the calling test unless the integration gate is set.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(integrationGate) == "" {
		t.Skipf("set %s=1 to run black-box tests against live backends", integrationGate)
	}
}

// StartOrderAPIServer runs `go run ./services/order-api/cmd` on a free port
// and blocks until /health answers. The returned cleanup must be deferred.
func StartOrderAPIServer(t *testing.T) (baseURL string, cleanup func()) {
	t.Helper()

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	cmd := exec.Command("go", "run", "./services/order-api/cmd")
	if repoRoot := findRepoRoot(); repoRoot != "" {
		cmd.Dir = repoRoot
	}
	cmd.Env = append(os.Environ(), fmt.Sprintf("APP_PORT=%d", port))

	stderr, _ := cmd.StderrPipe()
	stdout, _ := cmd.StdoutPipe()

	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start order-api: %v", err)
	}
	go streamToTesting(t, stdout)
	go streamToTesting(t, stderr)

	baseURL = fmt.Sprintf("http://127.0.0.1:%d", port)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := waitForReady(ctx, baseURL+"/health"); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		t.Fatalf("order-api failed to become ready: %v", err)
	}

	cleanup = func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	return baseURL, cleanup
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func waitForReady(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	for {
		if ctx.Err() != nil {
			return fmt.Errorf("timeout waiting for %s", url)
		}
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(150 * time.Millisecond)
	}
}

func streamToTesting(t *testing.T, r io.ReadCloser) {
	t.Helper()
	defer r.Close()
	s := bufio.NewScanner(r)
	for s.Scan() {
		if line := strings.TrimSpace(s.Text()); line != "" {
			t.Log(line)
		}
	}
}

// findRepoRoot walks up from this file until it finds go.mod.
func findRepoRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	dir := filepath.Dir(file)
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		dir = filepath.Clean(filepath.Join(dir, ".."))
	}
	return ""
}
