package cmd

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/solatis/beacon/internal/core/db"
	"github.com/spf13/cobra"
)

var clientInfoCmd = &cobra.Command{
	Use:   "client-info",
	Short: "Show the persisted client identity",
	RunE:  runClientInfo,
}

func init() {
	rootCmd.AddCommand(clientInfoCmd)
}

func runClientInfo(cmd *cobra.Command, args []string) error {
	conn, err := db.Open(dbURL)
	if err != nil {
		return fmt.Errorf("failed to open data store: %w", err)
	}
	defer conn.Close()

	queries, err := db.LoadQueries(conn)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	for _, key := range []string{"client_id", "first_run_date"} {
		var value string
		err := queries.Get("get-client-state", &value, key)
		if errors.Is(err, sql.ErrNoRows) {
			value = "(unset)"
		} else if err != nil {
			return err
		}
		fmt.Printf("%-16s %s\n", key, value)
	}
	return nil
}
