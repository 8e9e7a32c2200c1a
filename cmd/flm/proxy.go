package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/configstore"
	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/proxy"
)

// flmInternalDaemonEnv marks a re-exec'd child as the actual listener
// process; set only by runProxyStart's daemonizing branch, never by a user.
const flmInternalDaemonEnv = "FLM_INTERNAL_DAEMON"

func dispatchProxy(args []string, logger *zap.Logger) error {
	if len(args) == 0 {
		return exitUser("usage: flm proxy {start|stop|status|reload} [options]")
	}
	switch args[0] {
	case "start":
		return runProxyStart(args[1:], logger)
	case "stop":
		return runProxyStop(args[1:], logger)
	case "status":
		return runProxyStatus(args[1:], logger)
	case "reload":
		return runProxyReload(args[1:], logger)
	default:
		return exitUser("unknown proxy subcommand: %s", args[0])
	}
}

func runProxyStart(args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("proxy start", flag.ContinueOnError)
	port := fs.Int("port", 8080, "listener port")
	mode := fs.String("mode", "local-http", "tls mode: local-http|dev-selfsigned|packaged-ca|https-acme")
	bind := fs.String("bind", "127.0.0.1", "bind address")
	egressMode := fs.String("egress-mode", "direct", "egress mode: direct|socks5|tor")
	socks5Endpoint := fs.String("socks5-endpoint", "", "socks5 endpoint host:port")
	egressFailOpen := fs.Bool("egress-fail-open", false, "fall back to direct egress if the socks endpoint is unreachable")
	acmeEmail := fs.String("acme-email", "", "ACME account email")
	acmeDomain := fs.String("acme-domain", "", "ACME domain")
	challenge := fs.String("challenge", "http-01", "ACME challenge: http-01|dns-01")
	dnsProfile := fs.String("dns-profile", "", "DNS credential profile id, required for dns-01")
	noDaemon := fs.Bool("no-daemon", false, "run in the foreground instead of detaching")
	if err := fs.Parse(args); err != nil {
		return exitUser("%v", err)
	}

	cfg := core.ProxyConfig{
		Mode:     core.TLSMode(*mode),
		Port:     *port,
		BindAddr: *bind,
		Egress: core.EgressConfig{
			Mode:           core.EgressMode(*egressMode),
			Socks5Endpoint: *socks5Endpoint,
			FailOpen:       *egressFailOpen,
		},
		Acme: core.AcmeConfig{
			Email:        *acmeEmail,
			Domain:       *acmeDomain,
			Challenge:    core.AcmeChallenge(*challenge),
			DNSProfileID: *dnsProfile,
		},
	}
	if vErr := cfg.Validate(); vErr != nil {
		return vErr
	}

	if os.Getenv(flmInternalDaemonEnv) == "1" || *noDaemon {
		return serveProxyForeground(cfg, logger)
	}
	return daemonizeProxyStart(args, cfg, logger)
}

// serveProxyForeground binds the listener in this process and blocks until
// SIGINT/SIGTERM, honoring SIGHUP as a reload trigger. This is the body of
// both `--no-daemon` and the detached child a plain `proxy start` spawns.
func serveProxyForeground(cfg core.ProxyConfig, logger *zap.Logger) error {
	st, err := openStores(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	cfg.ConfigDBPath = filepath.Join(st.dir, "config.db")
	cfg.SecurityDBPath = filepath.Join(st.dir, "security.db")

	profile := configstore.ProxyProfile{
		ID:         newProfileID(),
		Name:       fmt.Sprintf("port-%d", cfg.Port),
		Mode:       cfg.Mode,
		BindAddr:   cfg.BindAddr,
		Port:       cfg.Port,
		EgressMode: cfg.Egress.Mode,
	}
	if _, err := st.configRepo.CreateProxyProfile(context.Background(), profile); err != nil {
		logger.Warn("failed to persist proxy profile", zap.Error(err))
	}

	ctrl := proxy.NewController(st.configRepo, st.security, st.engines, st.metrics, logger)
	ctx := context.Background()

	handle, err := ctrl.Start(ctx, profile, cfg)
	if err != nil {
		return err
	}
	printJSON(handle)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			if err := ctrl.Reload(ctx, handle.HandleID); err != nil {
				logger.Warn("reload failed, prior configuration remains active", zap.Error(err))
			}
			continue
		}
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := ctrl.Stop(stopCtx, handle.HandleID, 10*time.Second)
		cancel()
		return err
	}
	return nil
}

// daemonizeProxyStart re-execs the current binary with the internal daemon
// marker set and detaches it into its own session, then polls config.db
// until the handle the child persists becomes visible.
func daemonizeProxyStart(args []string, cfg core.ProxyConfig, logger *zap.Logger) error {
	st, err := openStores(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	logPath := filepath.Join(st.dir, fmt.Sprintf("proxy-%d.log", cfg.Port))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return core.NewRepoIOError("open daemon log file").WithCause(err)
	}
	defer logFile.Close()

	self, err := os.Executable()
	if err != nil {
		return core.NewProxyInvalidConfig(err.Error())
	}

	cmd := exec.Command(self, append([]string{"proxy", "start"}, args...)...)
	cmd.Env = append(os.Environ(), flmInternalDaemonEnv+"=1")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return core.NewProxyInvalidConfig(err.Error())
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		handles, err := st.configRepo.ListActiveHandles(context.Background())
		if err == nil {
			for _, h := range handles {
				if h.Port == cfg.Port && h.PID == cmd.Process.Pid {
					printJSON(h)
					return nil
				}
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return core.NewProxyTimeout("daemon did not report a running handle within 5s; see " + logPath)
}

func runProxyStop(args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("proxy stop", flag.ContinueOnError)
	port := fs.Int("port", 0, "port of the handle to stop")
	handleID := fs.String("handle-id", "", "handle id to stop")
	if err := fs.Parse(args); err != nil {
		return exitUser("%v", err)
	}

	st, err := openStores(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	handles, err := st.configRepo.ListActiveHandles(context.Background())
	if err != nil {
		return err
	}
	for _, h := range handles {
		if (*handleID != "" && h.HandleID == *handleID) || (*handleID == "" && *port != 0 && h.Port == *port) {
			proc, err := os.FindProcess(h.PID)
			if err != nil {
				return core.NewRepoIOError(err.Error())
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return core.NewRepoIOError("signal handle process").WithCause(err)
			}
			fmt.Printf("sent stop signal to %s (pid %d)\n", h.HandleID, h.PID)
			return nil
		}
	}
	return exitUser("no matching active handle")
}

func runProxyStatus(args []string, logger *zap.Logger) error {
	st, err := openStores(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	handles, err := st.configRepo.ListActiveHandles(context.Background())
	if err != nil {
		return err
	}
	printJSON(handles)
	return nil
}

func runProxyReload(args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("proxy reload", flag.ContinueOnError)
	port := fs.Int("port", 0, "port of the handle to reload")
	handleID := fs.String("handle-id", "", "handle id to reload")
	all := fs.Bool("all", false, "reload every active handle")
	if err := fs.Parse(args); err != nil {
		return exitUser("%v", err)
	}

	st, err := openStores(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	handles, err := st.configRepo.ListActiveHandles(context.Background())
	if err != nil {
		return err
	}
	signaled := 0
	for _, h := range handles {
		if *all || (*handleID != "" && h.HandleID == *handleID) || (*handleID == "" && *port != 0 && h.Port == *port) {
			proc, err := os.FindProcess(h.PID)
			if err != nil {
				continue
			}
			if err := proc.Signal(syscall.SIGHUP); err == nil {
				signaled++
			}
		}
	}
	if signaled == 0 {
		return exitUser("no matching active handle")
	}
	fmt.Printf("reload signaled for %d handle(s)\n", signaled)
	return nil
}

func newProfileID() string {
	return "profile-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
