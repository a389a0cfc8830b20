package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/kopi/internal/api"
	"github.com/kalambet/kopi/internal/config"
	"github.com/kalambet/kopi/internal/ingest"
	"github.com/kalambet/kopi/internal/ollama"
	"github.com/kalambet/kopi/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the kopi HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running kopi server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show kopi system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the assistant's tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "kopi.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "kopi version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + cfg.Addr() + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("kopi is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("kopi is already running on %s", cfg.Addr())
		return fmt.Errorf("server already running on %s", cfg.Addr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{progress: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	if a.indexer != nil {
		worker := ingest.NewWorker(a.store, a.indexer, 500*time.Millisecond)
		go worker.Run(ctx)
	}
	if cfg.Auth.Token == "" {
		slog.Info("no API token configured, history and import endpoints are open")
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewHandler(api.Deps{
			Assistant: a.assistant,
			Store:     a.store,
			Metrics:   a.metrics,
			Token:     cfg.Auth.Token,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "kopi listening on %s\n", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stdout carries the protocol, so model progress goes to stderr.
	a, err := newApp(ctx, cfg, appOptions{progress: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close()

	stdioSrv := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{
		Assistant: a.assistant,
		Store:     a.store,
	}))
	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("kopi is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop kopi (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to kopi (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := &apiClient{
		baseURL:    "http://" + cfg.Addr(),
		token:      cfg.Auth.Token,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	var health map[string]string
	if resp, err := client.get(ctx, "/health"); err != nil {
		printStatus("Server", "stopped")
	} else if err := decodeJSON(resp, &health); err != nil {
		printStatus("Server", "degraded: %v", err)
	} else {
		printStatus("Server", "running on %s", cfg.Addr())
		var interactions []json.RawMessage
		if resp, err := client.get(ctx, "/interactions?limit=100"); err == nil && decodeJSON(resp, &interactions) == nil {
			printStatus("Interactions", "%s", countLabel(len(interactions), 100))
		}
	}

	oc := ollama.New(cfg.Ollama.BaseURL)
	if v, err := oc.Version(ctx); err != nil {
		printStatus("Ollama", "not running (product search disabled)")
	} else if !oc.HasModel(ctx, cfg.Ollama.EmbedModel) {
		printStatus("Ollama", "%s at %s, %s missing", v, cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel)
	} else {
		printStatus("Ollama", "%s at %s, %s ready", v, cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel)
	}
	printStatus("Sessions", "%s (ttl %s)", cfg.Session.Backend, cfg.Session.TTL)

	if store, err := storage.Open(cfg.Storage.DataDir); err == nil {
		outlets, _ := store.CountOutlets(ctx)
		products, _ := store.CountProducts(ctx)
		pending, _ := store.CountJobs(ctx, "pending")
		printStatus("Outlets", "%d", outlets)
		printStatus("Products", "%d (%d waiting for embedding)", products, pending)
		store.Close()
	}

	printStatus("Config file", "%s", config.FilePath())
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
