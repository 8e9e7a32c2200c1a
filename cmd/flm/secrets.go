package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

func dispatchSecrets(args []string, logger *zap.Logger) error {
	if len(args) < 2 || args[0] != "dns" {
		return exitUser("usage: flm secrets dns {add|list|remove} [options]")
	}

	st, err := openStores(logger)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	switch args[1] {
	case "add":
		fs := flag.NewFlagSet("secrets dns add", flag.ContinueOnError)
		provider := fs.String("provider", "", "DNS provider name")
		label := fs.String("label", "", "profile label")
		zoneID := fs.String("zone-id", "", "provider zone id")
		zoneName := fs.String("zone-name", "", "provider zone name")
		token := fs.String("token", "", "provider API token")
		tokenStdin := fs.Bool("token-stdin", false, "read the token from stdin instead of --token")
		if err := fs.Parse(args[2:]); err != nil {
			return exitUser("%v", err)
		}
		if *provider == "" || *zoneID == "" {
			return exitUser("--provider and --zone-id are required")
		}
		secret := *token
		if *tokenStdin {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return exitUser("failed to read token from stdin: %v", err)
			}
			secret = strings.TrimSpace(line)
		}
		if secret == "" {
			return exitUser("a token is required via --token or --token-stdin")
		}
		profile, err := st.security.CreateDNSCredentialProfile(ctx, *provider, *label, *zoneID, *zoneName, secret)
		if err != nil {
			return err
		}
		printJSON(profile)
		return nil

	case "list":
		profiles, err := st.security.ListDNSCredentialProfiles(ctx)
		if err != nil {
			return err
		}
		printJSON(profiles)
		return nil

	case "remove":
		fs := flag.NewFlagSet("secrets dns remove", flag.ContinueOnError)
		id := fs.String("id", "", "profile id to remove")
		if err := fs.Parse(args[2:]); err != nil {
			return exitUser("%v", err)
		}
		if *id == "" {
			return exitUser("--id is required")
		}
		if err := st.security.DeleteDNSCredentialProfile(ctx, *id); err != nil {
			return err
		}
		fmt.Println("removed")
		return nil

	default:
		return exitUser("unknown secrets dns subcommand: %s", args[1])
	}
}
