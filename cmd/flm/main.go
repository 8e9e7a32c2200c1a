// =============================================================================
// FLM control-plane entry point
// =============================================================================
// Usage:
//
//	flm proxy start --port 18080 --mode local-http
//	flm proxy stop --handle-id handle-xxxx
//	flm proxy status
//	flm proxy reload --all
//	flm api-keys create --label ci
//	flm secrets dns add --provider cloudflare --label home --zone-id Z1 --token-stdin
//	flm security policy show
//	flm config set egress.mode direct
//	flm version
// =============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/flm-run/flm-proxy/core"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger := initLogger()
	defer logger.Sync()

	var err error
	switch os.Args[1] {
	case "proxy":
		err = dispatchProxy(os.Args[2:], logger)
	case "api-keys":
		err = dispatchAPIKeys(os.Args[2:], logger)
	case "secrets":
		err = dispatchSecrets(os.Args[2:], logger)
	case "security":
		err = dispatchSecurity(os.Args[2:], logger)
	case "config":
		err = dispatchConfig(os.Args[2:], logger)
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if e, ok := core.AsError(err); ok && e.Family == core.FamilyUser {
			if e.Message != "" {
				fmt.Fprintln(os.Stderr, e.Message)
			}
		} else {
			fmt.Fprintf(os.Stderr, "internal error: %v\n", err)
		}
		os.Exit(core.ExitCodeFor(err))
	}
}

func printVersion() {
	fmt.Printf("flm %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`flm - FLM proxy control plane

Usage:
  flm <command> [options]

Commands:
  proxy start    Bind a listener and start serving
  proxy stop     Stop a running listener
  proxy status   List handles, local and persisted
  proxy reload   Swap security policy on a running listener
  api-keys       create | list | revoke | rotate
  secrets dns    add | list | remove
  security       policy show | policy set
  config         get | set | list
  version        Show version information
  help           Show this help message

Environment:
  FLM_DATA_DIR        app-data dir override
  FLM_DISABLE_KEYRING  "1" stores DNS tokens inline instead of the OS keyring
  FLM_ROOT_CA_KEY      PEM private key for packaged-ca mode
  FLM_DEBUG            "1" enables debug logging

Examples:
  flm proxy start --mode local-http --port 18080
  flm api-keys create --label ci
  flm security policy show`)
}

func exitUser(format string, args ...any) error {
	return core.NewUserError(fmt.Sprintf(format, args...))
}
