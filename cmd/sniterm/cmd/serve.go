package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sniterm/sniterm"
	"github.com/sniterm/sniterm/internal/certmgr"
	"github.com/sniterm/sniterm/internal/config"
	"github.com/sniterm/sniterm/internal/dockerresolver"
	"github.com/sniterm/sniterm/internal/localdns"
	"github.com/sniterm/sniterm/internal/logging"
	"github.com/sniterm/sniterm/internal/paths"
)

// dockerConnectTimeout bounds how long serve waits to reach the Docker
// daemon before falling back to running without container discovery.
const dockerConnectTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the TLS front end",
	Long: `Run the sniterm TLS front end in the foreground: bind the listening
socket, terminate connections by SNI using certificates issued on demand
by the local CA, and (if configured) discover hostnames from Docker
container labels and serve a companion local DNS server.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create data directories: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Setup(logging.ParseLevel(cfg.Logging.Level), nil)
	logger := logging.Default()

	manager, err := certmgr.NewManager()
	if err != nil {
		return fmt.Errorf("%w (run 'sniterm ca generate' first)", err)
	}

	resolver := sniterm.ResolverFunc(manager.Resolve)
	var watcher *dockerresolver.Watcher
	var dockerClient *dockerresolver.Client

	if cfg.Docker.Enabled {
		dockerClient, err = dockerresolver.NewClientWithHost(cfg.Docker.Socket, logger)
		if err != nil {
			return fmt.Errorf("failed to create Docker client: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), dockerConnectTimeout)
		connectErr := dockerClient.Connect(ctx)
		cancel()

		if connectErr != nil {
			logger.Warn("Docker daemon unreachable, continuing without container discovery", "error", connectErr)
		} else {
			dockerResolver := dockerresolver.NewResolver(dockerClient, cfg.Docker.Network, manager, logger)
			watcher = dockerresolver.NewWatcher(dockerClient, dockerResolver.HandleEvent, logger)

			if err := watcher.Start(context.Background()); err != nil {
				logger.Warn("failed to start Docker watcher", "error", err)
			}

			resolver = chainResolvers(dockerResolver.Resolve, manager.Resolve)
		}
	}

	defaultCert, err := manager.Resolve(cfg.CA.Domains[0])
	if err != nil {
		return fmt.Errorf("failed to issue default certificate: %w", err)
	}

	server, err := sniterm.Bind(cfg.Listen.Network, cfg.Listen.Address, sniterm.Options{
		Resolver:               resolver,
		DefaultSecurityContext: defaultCert,
		RequireHostname:        cfg.Listen.RequireHostname,
		ValidatePublicDomain:   cfg.Listen.ValidatePublicDomainSNI,
		Logger:                 logger,
	})
	if err != nil {
		return fmt.Errorf("failed to bind %s %s: %w", cfg.Listen.Network, cfg.Listen.Address, err)
	}
	defer server.Close()

	logger.Info("sniterm front end listening", "network", cfg.Listen.Network, "address", server.Addr().String())

	var dnsServer *localdns.Server
	if cfg.DNS.Enabled {
		dnsServer = localdns.New(localdns.Config{
			Addr:         cfg.DNS.Listen,
			Domains:      cfg.DNS.Domains,
			Upstream:     cfg.DNS.Upstream,
			FrontendAddr: server.Addr().String(),
		})
		if err := dnsServer.Start(); err != nil {
			logger.Warn("failed to start DNS server", "error", err)
			dnsServer = nil
		}
	}

	var accessLog *logging.AccessLogger
	if cfg.Logging.AccessLog {
		accessLog = logging.NewAccessLogger(logger)
	}
	go drainConns(server, accessLog)

	// The listening socket and signing CA can't change without a
	// restart, but the DNS companion's domains/upstream and the log
	// level can: configWatcher applies those three live on every config
	// file save.
	configWatcher := config.NewWatcher(paths.ConfigFile(), func(newCfg *config.Config) {
		logging.Setup(logging.ParseLevel(newCfg.Logging.Level), nil)
		if dnsServer != nil {
			dnsServer.UpdateConfig(newCfg.DNS.Domains, newCfg.DNS.Upstream, server.Addr().String())
		}
	})
	if err := configWatcher.Start(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
		configWatcher = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	if configWatcher != nil {
		configWatcher.Stop()
	}
	if watcher != nil {
		watcher.Stop()
	}
	if dockerClient != nil {
		dockerClient.Close()
	}
	if dnsServer != nil {
		if err := dnsServer.Stop(); err != nil {
			logger.Warn("failed to stop DNS server", "error", err)
		}
	}

	return server.Close()
}

// drainConns hands every accepted secure connection its own lifetime and
// closes it immediately: sniterm only terminates TLS, leaving what
// happens to the plaintext byte stream to a caller-supplied handler, and
// serve wires none up on its own. accessLog is nil unless
// logging.access_log is enabled, in which case each connection is
// recorded before it's closed.
func drainConns(server *sniterm.Server, accessLog *logging.AccessLogger) {
	for conn := range server.Conns() {
		accessLog.Log(logging.AccessRecord{
			Hostname:       conn.Hostname,
			RemoteAddr:     conn.RemoteAddress,
			NegotiatedALPN: conn.NegotiatedALPN,
		})
		_ = conn.Close()
	}
}

// chainResolvers tries each resolver in order and returns the first
// non-nil SecurityContext. This is the Docker-label-then-CA fallback of
// spec §4.4: a hostname recognized via container labels is resolved (and
// pre-warmed) by the Docker resolver; anything else falls through to the
// certificate manager, which issues a certificate for any domain asked
// of it.
func chainResolvers(resolvers ...sniterm.ResolverFunc) sniterm.ResolverFunc {
	return func(hostname string) (*sniterm.SecurityContext, error) {
		for _, resolve := range resolvers {
			cert, err := resolve(hostname)
			if err != nil {
				return nil, err
			}
			if cert != nil {
				return cert, nil
			}
		}
		return nil, nil
	}
}
