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
	"golang.org/x/sync/errgroup"

	"github.com/avelkin/applyq/internal/api"
	"github.com/avelkin/applyq/internal/apply"
	"github.com/avelkin/applyq/internal/browser"
	"github.com/avelkin/applyq/internal/config"
	"github.com/avelkin/applyq/internal/profile"
	"github.com/avelkin/applyq/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the applyq server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running applyq server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applyq system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "applyq.pid")
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
	fmt.Fprintf(os.Stderr, "applyq version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure the management API token exists, generating one on first run.
	apiToken, err := config.GetAPIToken(config.NewSecretStore())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	if cfg.Browser.APIKey == "" {
		printWarning("browser API key not set; every attempt will fail at session provisioning")
	}
	if cfg.Queue.BatchSecret == "" {
		printWarning("batch secret not set; the /batch/run trigger is disabled")
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("applyq is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("applyq is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the actuation stack: browser client, attempt config, drivers.
	profileMgr := profile.NewManager(store)
	browserClient := browser.NewClient(cfg.Browser.BaseURL, cfg.Browser.APIKey)
	browserClient.SetNavigateTimeout(time.Duration(cfg.Browser.NavigateTimeoutSec) * time.Second)
	opener := apply.BrowserOpener{Client: browserClient}
	attemptCfg := apply.Config{
		SessionBudget: time.Duration(cfg.Browser.SessionBudgetSec) * time.Second,
		BudgetBuffer:  time.Duration(cfg.Browser.BudgetBufferSec) * time.Second,
	}.WithDefaults()

	batch := &apply.BatchDriver{
		Store:    store,
		Profiles: profileMgr,
		Opener:   opener,
		Config:   attemptCfg,
		Logger:   slog.Default(),
	}
	runs := apply.NewRunService(store, profileMgr, opener, attemptCfg, slog.Default())

	// The live driver delegates actuation to the external runner endpoint
	// when one is configured, so runs outlive this process's invocation
	// limits; otherwise it uses the in-process run service.
	var runner apply.Runner = runs
	if cfg.Queue.RunnerURL != "" {
		runner = apply.NewHTTPRunner(cfg.Queue.RunnerURL, apiToken)
		slog.Info("live driver using external runner", "url", cfg.Queue.RunnerURL)
	}

	live := &apply.LiveDriver{
		Store:         store,
		Profiles:      profileMgr,
		Runner:        runner,
		Logger:        slog.Default(),
		WatchInterval: time.Duration(cfg.Queue.WatchIntervalMS) * time.Millisecond,
		PollInterval:  time.Duration(cfg.Queue.LivePollIntervalMS) * time.Millisecond,
		PollAttempts:  cfg.Queue.LivePollAttempts,
	}
	defer live.Disable()

	// Build HTTP handler and server.
	appHandler := api.NewAppHandler(api.AppDeps{
		Store:       store,
		Profile:     profileMgr,
		Batch:       batch,
		Live:        live,
		Runs:        runs,
		Token:       apiToken,
		BatchSecret: cfg.Queue.BatchSecret,
		OwnerID:     cfg.Queue.OwnerID,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Build the MCP server (stdio transport).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:   store,
		OwnerID: cfg.Queue.OwnerID,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "applyq listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	slog.Info("MCP server started (stdio transport)")

	return g.Wait()
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
		printError("applyq is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop applyq (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to applyq (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check browser actuation service reachability.
	browserResp, err := client.Get(cfg.Browser.BaseURL + "/v1/health")
	if err != nil {
		printStatus("Browser service", "not reachable at %s", cfg.Browser.BaseURL)
	} else {
		browserResp.Body.Close()
		printStatus("Browser service", "reachable at %s", cfg.Browser.BaseURL)
	}

	// Show queue stats if server is running.
	apiToken, tokenErr := config.GetAPIToken(config.NewSecretStore())
	if tokenErr == nil && resp != nil && resp.StatusCode == 200 {
		statsResp, err := apiGet(client, serverURL+"/queue/stats", apiToken)
		if err == nil {
			var stats struct {
				Pending   int `json:"pending"`
				Claimed   int `json:"claimed"`
				Completed int `json:"completed"`
				Failed    int `json:"failed"`
				Skipped   int `json:"skipped"`
			}
			if json.NewDecoder(statsResp.Body).Decode(&stats) == nil {
				printStatus("Queue", "%d pending, %d claimed, %d completed, %d failed, %d skipped",
					stats.Pending, stats.Claimed, stats.Completed, stats.Failed, stats.Skipped)
			}
			statsResp.Body.Close()
		}
		liveResp, err2 := apiGet(client, serverURL+"/live/status", apiToken)
		if err2 == nil {
			var live struct {
				Enabled      bool   `json:"enabled"`
				IsProcessing bool   `json:"isProcessing"`
				CurrentJob   string `json:"currentJob"`
			}
			if json.NewDecoder(liveResp.Body).Decode(&live) == nil {
				if live.Enabled {
					if live.IsProcessing {
						printStatus("Live mode", "on (applying to %q)", live.CurrentJob)
					} else {
						printStatus("Live mode", "on (idle)")
					}
				} else {
					printStatus("Live mode", "off")
				}
			}
			liveResp.Body.Close()
		}
	}

	printStatus("Owner", "%s", cfg.Queue.OwnerID)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
