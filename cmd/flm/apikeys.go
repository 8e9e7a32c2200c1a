package main

import (
	"context"
	"flag"
	"fmt"

	"go.uber.org/zap"
)

func dispatchAPIKeys(args []string, logger *zap.Logger) error {
	if len(args) == 0 {
		return exitUser("usage: flm api-keys {create|list|revoke|rotate} [options]")
	}

	st, err := openStores(logger)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("api-keys create", flag.ContinueOnError)
		label := fs.String("label", "", "human-readable label")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUser("%v", err)
		}
		plaintext, rec, err := st.security.CreateAPIKey(ctx, *label)
		if err != nil {
			return err
		}
		fmt.Printf("id: %s\nkey: %s\n", rec.ID, plaintext)
		return nil

	case "list":
		keys, err := st.security.ListAPIKeys(ctx)
		if err != nil {
			return err
		}
		printJSON(keys)
		return nil

	case "revoke":
		fs := flag.NewFlagSet("api-keys revoke", flag.ContinueOnError)
		id := fs.String("id", "", "key id to revoke")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUser("%v", err)
		}
		if *id == "" {
			return exitUser("--id is required")
		}
		if err := st.security.RevokeAPIKey(ctx, *id); err != nil {
			return err
		}
		fmt.Println("revoked")
		return nil

	case "rotate":
		fs := flag.NewFlagSet("api-keys rotate", flag.ContinueOnError)
		id := fs.String("id", "", "key id to rotate")
		newLabel := fs.String("label", "", "label for the replacement key")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUser("%v", err)
		}
		if *id == "" {
			return exitUser("--id is required")
		}
		plaintext, rec, err := st.security.RotateAPIKey(ctx, *id, *newLabel)
		if err != nil {
			return err
		}
		fmt.Printf("id: %s\nkey: %s\n", rec.ID, plaintext)
		return nil

	default:
		return exitUser("unknown api-keys subcommand: %s", args[0])
	}
}
