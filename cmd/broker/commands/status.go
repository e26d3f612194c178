package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qsysmcp/broker/config"
	"github.com/qsysmcp/broker/errors"
	"github.com/qsysmcp/broker/qsys"
)

var statusConfigPath string

// StatusCmd probes the configured core directly, independent of any
// running `serve` process, and reports reachability and core status.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the configured Q-SYS core and report reachability",
	RunE:  runStatus,
}

func init() {
	StatusCmd.Flags().StringVar(&statusConfigPath, "config", "", "path to broker.json (default: ./broker.json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if statusConfigPath != "" {
		cfg, err = config.LoadFromFile(statusConfigPath)
	} else {
		cfg, err = config.Load()
	}
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connectErr := client.Connect(ctx)
	defer client.Disconnect()

	report := struct {
		Host      string `json:"host"`
		Port      int    `json:"port"`
		Reachable bool   `json:"reachable"`
		Error     string `json:"error,omitempty"`
	}{
		Host:      cfg.Connection.Host,
		Port:      cfg.Connection.Port,
		Reachable: connectErr == nil,
	}
	if connectErr != nil {
		report.Error = connectErr.Error()
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to format status report")
	}
	fmt.Println(string(out))

	if connectErr != nil {
		return connectErr
	}
	return nil
}
