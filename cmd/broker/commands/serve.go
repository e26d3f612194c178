package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qsysmcp/broker/adapter"
	"github.com/qsysmcp/broker/config"
	"github.com/qsysmcp/broker/errors"
	"github.com/qsysmcp/broker/logger"
	"github.com/qsysmcp/broker/mcpserver"
	"github.com/qsysmcp/broker/qsys"
	"github.com/qsysmcp/broker/recorder"
)

var serveConfigPath string

// ServeCmd connects to the configured core and serves the MCP tool
// catalogue over stdio until the broker process is signaled to stop.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Connect to the Q-SYS core and serve MCP tools over stdio",
	RunE:    runServe,
}

func init() {
	ServeCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to broker.json (default: ./broker.json)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	client := qsys.New(qsys.Target{
		Host:    cfg.Connection.Host,
		Port:    cfg.Connection.Port,
		User:    cfg.Connection.User,
		Pass:    cfg.Connection.Pass,
		Timeout: time.Duration(cfg.Connection.TimeoutMS) * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dialErr := client.Connect(ctx)
	cancel()
	if dialErr != nil {
		logger.Errorw("initial connect to core failed, retrying in the background",
			"error", dialErr.Error())
		interval := time.Duration(cfg.Connection.ReconnectIntervalMS) * time.Millisecond
		go retryInitialConnect(client, interval)
	}

	ad := adapter.New(client)

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec = recorder.New(recorder.Options{
			Dir:           cfg.Recorder.Path,
			BufferSize:    cfg.Recorder.BufferSize,
			FlushInterval: time.Duration(cfg.Recorder.FlushIntervalMS) * time.Millisecond,
			RetentionDays: cfg.Recorder.RetentionDays,
		})
		rec.Start()
		defer rec.Stop()
		ad.SetRecorder(rec)
	}

	srv := mcpserver.New(client, ad, rec, cfg.Dispatcher)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		if rec != nil {
			rec.Stop()
		}
		_ = client.Disconnect()
		os.Exit(0)
	}()

	logger.Infow("broker serving MCP tools over stdio", "host", cfg.Connection.Host, "port", cfg.Connection.Port)
	return srv.Serve()
}

func loadServeConfig() (*config.Config, error) {
	if serveConfigPath != "" {
		return config.LoadFromFile(serveConfigPath)
	}
	return config.Load()
}

// retryInitialConnect retries Connect on a fixed interval until it
// succeeds. Once connected, the client's own reconnect loop (spec §3)
// takes over for subsequent drops.
func retryInitialConnect(client *qsys.Client, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := client.Connect(ctx)
		cancel()
		if err == nil {
			logger.Info("connected to core")
			return
		}
		logger.Warnw("retrying connect to core", "error", err.Error())
	}
}
