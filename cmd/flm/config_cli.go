package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

func dispatchConfig(args []string, logger *zap.Logger) error {
	if len(args) == 0 {
		return exitUser("usage: flm config {get|set|list} [key] [value]")
	}

	st, err := openStores(logger)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	switch args[0] {
	case "get":
		if len(args) < 2 {
			return exitUser("usage: flm config get <key>")
		}
		value, err := st.configRepo.GetConfigValue(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil

	case "set":
		if len(args) < 3 {
			return exitUser("usage: flm config set <key> <value>")
		}
		if err := st.configRepo.SetConfigValue(ctx, args[1], args[2]); err != nil {
			return err
		}
		return nil

	case "list":
		entries, err := st.configRepo.ListConfigValues(ctx)
		if err != nil {
			return err
		}
		printJSON(entries)
		return nil

	default:
		return exitUser("unknown config subcommand: %s", args[0])
	}
}
