package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/antibyte/retrocalc/pkg/calculator"
	"github.com/antibyte/retrocalc/pkg/configuration"
	"github.com/antibyte/retrocalc/pkg/logger"
	"github.com/antibyte/retrocalc/pkg/shared"
	"github.com/antibyte/retrocalc/pkg/storage"
	"github.com/antibyte/retrocalc/pkg/terminal"
	tlsmanager "github.com/antibyte/retrocalc/pkg/tls"
)

const configPath = "settings.cfg"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "eval":
			os.Exit(runEval(os.Args[2:], os.Stdout, os.Stderr))
		case "gencert":
			os.Exit(runGenCert(os.Args[2:], os.Stderr))
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "retrocalc: %v\n", err)
		os.Exit(1)
	}
}

// loadConfigIfPresent reads settings.cfg without creating it; one-shot
// commands otherwise run on defaults.
func loadConfigIfPresent() {
	if _, err := os.Stat(configPath); err == nil {
		if cfg, err := configuration.Load(configPath); err == nil {
			configuration.Use(cfg)
			return
		}
	}
	configuration.Use(configuration.New())
}

// runEval prints "expression = result" per argument and returns 1 if any failed
func runEval(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: retrocalc eval <expression>...")
		return 2
	}
	loadConfigIfPresent()

	calc := calculator.NewFromConfig()
	status := 0
	for _, expr := range args {
		result, err := calc.Calculate(expr)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", expr, err)
			status = 1
			continue
		}
		fmt.Fprintf(stdout, "%s = %s\n", strings.TrimSpace(expr), shared.FormatNumber(result))
	}
	return status
}

// runGenCert writes a self-signed certificate to the configured cert/key paths
func runGenCert(hosts []string, stderr io.Writer) int {
	loadConfigIfPresent()
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}
	certFile := configuration.GetString("TLS", "cert_file", "./certs/server.crt")
	keyFile := configuration.GetString("TLS", "key_file", "./certs/server.key")
	if err := tlsmanager.GenerateSelfSignedCert(certFile, keyFile, hosts, 365*24*time.Hour); err != nil {
		fmt.Fprintf(stderr, "gencert: %v\n", err)
		return 1
	}
	fmt.Fprintf(stderr, "wrote %s and %s\n", certFile, keyFile)
	return 0
}

func run() error {
	if err := configuration.Initialize(configPath); err != nil {
		return fmt.Errorf("initializing configuration: %w", err)
	}
	if err := logger.Initialize(); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Close()
	logger.ConfigInfo("System started - Configuration loaded from: %s", configPath)

	store, err := storage.Open(configuration.GetString("Storage", "database_path", "retrocalc.db"))
	if err != nil {
		logger.DatabaseError("Database initialization failed: %v", err)
		return err
	}
	defer store.Close()

	handler := terminal.NewHandler(store)

	tlsManager, err := tlsmanager.NewTLSManager()
	if err != nil {
		logger.Error(logger.AreaSecurity, "TLS setup failed: %v", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	var servers []*http.Server
	if tlsManager.IsEnabled() {
		servers = startTLSServers(tlsManager, handler, errCh)
	} else {
		go func() { errCh <- handler.Start(":" + tlsManager.GetHTTPPort()) }()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

wait:
	for {
		select {
		case <-ctx.Done():
			logger.ServerInfo("shutdown requested")
			break wait
		case err = <-errCh:
			if err != nil {
				logger.ServerError("server stopped: %v", err)
			}
			break wait
		case <-hup:
			if rerr := reloadSettings(); rerr != nil {
				logger.ServerWarn("reloading %s: %v", configPath, rerr)
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := handler.Shutdown(shutdownCtx); serr != nil {
		logger.ServerWarn("shutdown: %v", serr)
	}
	for _, s := range servers {
		if serr := s.Shutdown(shutdownCtx); serr != nil {
			logger.ServerWarn("shutdown of %s: %v", s.Addr, serr)
		}
	}
	return err
}

// reloadSettings re-reads settings.cfg on SIGHUP. Log levels and areas apply
// at once; calculator settings apply to new connections.
func reloadSettings() error {
	cfg, err := configuration.Load(configPath)
	if err != nil {
		return err
	}
	configuration.Use(cfg)
	if err := logger.ReloadConfig(); err != nil {
		return err
	}
	logger.ConfigInfo("configuration reloaded from %s", configPath)
	return nil
}

// startTLSServers runs HTTPS and, when redirects or ACME need it, the plain port
func startTLSServers(tlsManager *tlsmanager.TLSManager, handler *terminal.Handler, errCh chan<- error) []*http.Server {
	httpsServer := &http.Server{
		Addr:              ":" + tlsManager.GetHTTPSPort(),
		Handler:           handler,
		TLSConfig:         tlsManager.GetTLSConfig(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	servers := []*http.Server{httpsServer}

	go func() {
		logger.Info(logger.AreaSecurity, "HTTPS server listening on %s", httpsServer.Addr)
		// Certificates come from TLSConfig in both modes.
		err := httpsServer.ListenAndServeTLS("", "")
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	if tlsManager.NeedsHTTPServer() {
		httpServer := &http.Server{
			Addr:              ":" + tlsManager.GetHTTPPort(),
			Handler:           tlsManager.PlainHandler(handler),
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, httpServer)
		go func() {
			logger.Info(logger.AreaSecurity, "HTTP server for redirects and ACME challenges on %s", httpServer.Addr)
			err := httpServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			errCh <- err
		}()
	}
	return servers
}
