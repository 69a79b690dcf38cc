package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/alertdesk/alarm-console/internal/config"
	"github.com/alertdesk/alarm-console/internal/logger"
	"github.com/alertdesk/alarm-console/internal/transport"
)

// Options controls the feed server process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override.
	ListenAddress string
	// SimulateInterval, when positive, makes the feed generate random
	// alarm traffic at that cadence for demo purposes.
	SimulateInterval time.Duration
	// Service optionally supplies a preconstructed feed, letting embedders
	// and tests publish into the running server.
	Service *Service
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the feed gRPC server and blocks until the context is canceled
// or the server stops.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "alarm-feedd")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}

	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	svc := opts.Service
	if svc == nil {
		svc = NewService()
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&transport.ServiceDesc, svc)

	logger.InfoKV(ctx, "Alarm feed listening",
		"listen_address", listenAddress,
		"simulate_interval", opts.SimulateInterval,
	)

	if opts.SimulateInterval > 0 {
		go simulate(ctx, svc, opts.SimulateInterval)
	}

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down feed server")
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Feed server stopped")

	return nil
}

// simulate generates random alarm traffic until the context ends.
func simulate(ctx context.Context, svc *Service, interval time.Duration) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.SimulateOnce(rng)
		}
	}
}

// resolveListenAddress determines the listen address for the gRPC server.
// An override is used directly; otherwise the port is extracted from the
// configured server address so the feed binds on all interfaces.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	return ":" + port, nil
}
