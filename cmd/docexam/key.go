package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pavelanni/docexam/internal/store"
)

var errKeyRequired = errors.New("an API key argument or stdin input is required")

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored LLM API key",
	}
	set := &cobra.Command{
		Use:   "set [KEY]",
		Short: "Store the API key (reads stdin when KEY is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runKeySet,
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored API key, masked",
		Args:  cobra.NoArgs,
		RunE:  runKeyShow,
	}
	for _, c := range []*cobra.Command{set, show} {
		c.Flags().String("db", "docexam.db", "SQLite database path")
		addLogFlags(c.Flags())
	}
	cmd.AddCommand(set, show)
	return cmd
}

func runKeySet(cmd *cobra.Command, args []string) error {
	defer setupLogging(cmd)()
	v := viperForCmd(cmd)

	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 4096))
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		key = string(b)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errKeyRequired
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.SetAPIKey(key); err != nil {
		return fmt.Errorf("store API key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "API key saved:", maskKey(key))
	return nil
}

func runKeyShow(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd)()
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	key, err := db.APIKey()
	if err != nil {
		return fmt.Errorf("load API key: %w", err)
	}
	if key == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), maskKey(key))
	return nil
}

// maskKey keeps the last four characters of key.
func maskKey(key string) string {
	r := []rune(key)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}
