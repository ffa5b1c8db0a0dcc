// Package collector drives one collection run against one switch: connect,
// enumerate access-sessions, query per-MAC detail, classify and enrich, then
// hand back the aggregated result. Runs are strictly sequential per device
// and never retried; the first device error aborts the whole run.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dagolovach/ise-session-manager/internal/config"
	"github.com/dagolovach/ise-session-manager/internal/device"
	"github.com/dagolovach/ise-session-manager/internal/metrics"
	"github.com/dagolovach/ise-session-manager/internal/model"
	"github.com/dagolovach/ise-session-manager/internal/parse"
)

const (
	inventoryCommand = "show access-session"
	detailCommand    = "show access-session mac %s details"
)

// Runner is the device-facing surface the collector drives.
type Runner interface {
	Run(command string) (string, error)
	Close() error
}

// DialFunc opens a command channel to a target switch.
type DialFunc func(ctx context.Context, target string) (Runner, error)

// VendorLookup resolves a MAC address to a manufacturer name.
type VendorLookup interface {
	Lookup(ctx context.Context, mac string) string
}

// Collector runs collections against switches using shared credentials.
type Collector struct {
	cfg     *config.Config
	dial    DialFunc
	vendors VendorLookup
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a collector. The metrics argument may be nil.
func New(cfg *config.Config, vendors VendorLookup, m *metrics.Metrics, logger *slog.Logger) *Collector {
	c := &Collector{
		cfg:     cfg,
		vendors: vendors,
		metrics: m,
		logger:  logger,
	}
	c.dial = c.dialDevice
	return c
}

// Collect performs one full collection run against target. An empty result is
// a valid outcome; an error means the device could not be queried and no
// partial result exists.
func (c *Collector) Collect(ctx context.Context, target string) (*model.CollectionResult, error) {
	started := time.Now()
	if c.metrics != nil {
		c.metrics.IncrementCollectionRuns()
	}

	c.logger.Info("Starting collection run", "target", target)

	conn, err := c.dial(ctx, target)
	if err != nil {
		if c.metrics != nil {
			c.metrics.IncrementCollectionFailures()
		}
		c.logger.Error("Failed to connect to device", "target", target, "error", err)
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	// Close always runs, even when a mid-run command error aborts the run.
	defer conn.Close()

	rawInventory, err := conn.Run(inventoryCommand)
	if err != nil {
		if c.metrics != nil {
			c.metrics.IncrementCollectionFailures()
		}
		return nil, fmt.Errorf("inventory query failed on %s: %w", target, err)
	}

	inventory := parse.ParseInventory(rawInventory)
	c.logger.Info("Inventory parsed",
		"target", target,
		"session_count", inventory.Count,
		"macs", len(inventory.MACs))

	result := &model.CollectionResult{
		RunID:        uuid.New().String(),
		Target:       target,
		StartedAt:    started.UTC(),
		SessionCount: inventory.Count,
		Sessions:     make(map[string]*model.ClassifiedSession),
	}

	// The shell is a single command stream, so detail queries must stay
	// strictly sequential.
	for _, mac := range inventory.MACs {
		detail, err := conn.Run(fmt.Sprintf(detailCommand, mac))
		if err != nil {
			if c.metrics != nil {
				c.metrics.IncrementCollectionFailures()
			}
			return nil, fmt.Errorf("detail query for %s failed on %s: %w", mac, target, err)
		}

		session, ok := parse.ParseDetail(detail, mac)
		if !ok {
			continue
		}

		// MAB asserts identity purely from the MAC, so the manufacturer
		// is the only clue to what the endpoint actually is.
		if strings.EqualFold(session.Method, "mab") {
			session.Vendor = c.vendors.Lookup(ctx, session.MACAddress)
		}

		if _, seen := result.Sessions[session.MACAddress]; !seen {
			result.MACs = append(result.MACs, session.MACAddress)
		}
		result.Sessions[session.MACAddress] = session

		c.logger.Debug("Session flagged",
			"target", target,
			"mac", session.MACAddress,
			"status", session.Status,
			"method", session.Method)
	}

	result.DurationMs = time.Since(started).Milliseconds()
	if c.metrics != nil {
		c.metrics.AddFlaggedSessions(result.Flagged(), float64(time.Now().Unix()))
	}

	c.logger.Info("Collection run completed",
		"target", target,
		"run_id", result.RunID,
		"flagged", result.Flagged(),
		"duration_ms", result.DurationMs)

	return result, nil
}

// dialDevice opens a privileged SSH shell on the target with the configured
// switch credentials.
func (c *Collector) dialDevice(ctx context.Context, target string) (Runner, error) {
	conn, err := device.Open(ctx, target, device.Credentials{
		Username:     c.cfg.SwitchUsername,
		Password:     c.cfg.SwitchPassword,
		EnableSecret: c.cfg.SwitchSecret,
	}, device.Options{
		Port:           c.cfg.SSHPort,
		ConnectTimeout: c.cfg.SSHTimeout,
		CommandTimeout: c.cfg.CommandTimeout,
		Logger:         c.logger,
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
