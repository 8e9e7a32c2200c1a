package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/security"
)

func dispatchSecurity(args []string, logger *zap.Logger) error {
	if len(args) < 2 || args[0] != "policy" {
		return exitUser("usage: flm security policy {show|set} [options]")
	}

	st, err := openStores(logger)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	switch args[1] {
	case "show":
		policy, err := st.security.GetPolicy(ctx)
		if err != nil {
			return err
		}
		printJSON(policy)
		return nil

	case "set":
		fs := flag.NewFlagSet("security policy set", flag.ContinueOnError)
		inlineJSON := fs.String("json", "", "policy as an inline JSON document")
		file := fs.String("file", "", "path to a JSON file containing the policy")
		if err := fs.Parse(args[2:]); err != nil {
			return exitUser("%v", err)
		}

		var raw []byte
		switch {
		case *inlineJSON != "":
			raw = []byte(*inlineJSON)
		case *file != "":
			data, err := os.ReadFile(*file)
			if err != nil {
				return exitUser("failed to read %s: %v", *file, err)
			}
			raw = data
		default:
			return exitUser("one of --json or --file is required")
		}

		var policy security.Policy
		if err := json.Unmarshal(raw, &policy); err != nil {
			return exitUser("invalid policy JSON: %v", err)
		}
		if err := st.security.SetPolicy(ctx, policy); err != nil {
			return err
		}
		return nil

	default:
		return exitUser("unknown security policy subcommand: %s", args[1])
	}
}
