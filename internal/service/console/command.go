package console

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alertdesk/alarm-console/internal/config"
	enginecore "github.com/alertdesk/alarm-console/internal/console"
	"github.com/alertdesk/alarm-console/internal/console/query"
	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
	"github.com/alertdesk/alarm-console/internal/logger"
	"github.com/alertdesk/alarm-console/internal/transport"
)

// Options controls the console process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional feed address override.
	ServerAddress string
	// Category selects the initially active stack.
	Category string
	// Filter is an optional boolean expression applied to the rendered
	// snapshot, e.g. `priority >= 7 && !assigned`.
	Filter string
	// AgentID provides an optional identity override.
	AgentID string
	// RenderInterval is the cadence of the snapshot log; zero means the
	// default.
	RenderInterval time.Duration
}

// defaultRenderInterval is the snapshot log cadence when none is configured.
const defaultRenderInterval = 5 * time.Second

// Run connects the console engine to the feed server and renders the active
// category until the context is canceled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "alarm-console")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}

	address := settings.ServerAddress
	if opts.ServerAddress != "" {
		address = opts.ServerAddress
	}

	agentID := settings.AgentID
	if opts.AgentID != "" {
		agentID = opts.AgentID
	}

	if agentID == "" {
		agentID = uuid.NewString()
	}

	var filter *query.Filter

	if opts.Filter != "" {
		filter, err = query.Compile(opts.Filter)
		if err != nil {
			return fmt.Errorf("parse filter: %w", err)
		}
	}

	engine := enginecore.New(ctx, enginecore.Options{
		AgentID: agentID,
		Retry:   settings.RetryConfig(),
	}, nil)

	client, err := transport.Dial(ctx, address, engine)
	if err != nil {
		return fmt.Errorf("connect to feed: %w", err)
	}

	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close feed connection", "error", closeErr)
		}

		engine.Close()
	}()

	engine.Bind(client)

	if opts.Category != "" {
		if err = engine.SetActive(domain.Category(opts.Category)); err != nil {
			return fmt.Errorf("select category: %w", err)
		}
	}

	// Every category stays subscribed; the active one only selects the view.
	for _, category := range domain.Categories() {
		if err = client.Subscribe(category); err != nil {
			return fmt.Errorf("subscribe %s: %w", category, err)
		}
	}

	logger.InfoKV(ctx, "Alarm console started",
		"server_address", address,
		"agent_id", agentID,
		"active_category", engine.Active(),
		"filter", opts.Filter,
	)

	interval := opts.RenderInterval
	if interval <= 0 {
		interval = defaultRenderInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Shutting down console")

			return nil
		case <-ticker.C:
			render(ctx, engine, filter)
		}
	}
}

// render logs the active category snapshot in priority order.
func render(ctx context.Context, engine *enginecore.Console, filter *query.Filter) {
	category := engine.Active()
	alarms := engine.Alarms(category)

	if filter != nil {
		filtered, err := filter.Apply(alarms)
		if err != nil {
			logger.WarnKV(ctx, "Filter evaluation failed", "error", err)

			return
		}

		alarms = filtered
	}

	logger.InfoKV(ctx, "Category snapshot",
		"category", category,
		"status", engine.Status(category),
		"degraded", engine.Degraded(category),
		"last_seq", engine.LastSeq(category),
		"pending_seqs", engine.PendingSeqs(category),
		"alarms", len(alarms),
	)

	for rank, a := range alarms {
		logger.InfoKV(ctx, "Alarm",
			"rank", rank+1,
			"id", a.ID,
			"priority", a.Priority,
			"status", a.Status,
			"agent", a.AssignedAgentID,
			"unconfirmed", engine.Unconfirmed(category, a.ID),
		)
	}
}
