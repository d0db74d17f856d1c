package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/solatis/beacon/internal/core/db"
	"github.com/solatis/beacon/internal/metrics"
	"github.com/solatis/beacon/internal/upload"
	"github.com/spf13/cobra"
)

var (
	flushEndpoint string
	flushTimeout  time.Duration
	flushDebugTag string
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Inspect the pending upload queue",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued ping uploads in delivery order",
	RunE:  runPendingList,
}

var pendingFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Deliver all queued pings to a collector now",
	RunE:  runPendingFlush,
}

func init() {
	pendingFlushCmd.Flags().StringVar(&flushEndpoint, "endpoint", "", "collector base URL (required)")
	pendingFlushCmd.Flags().DurationVar(&flushTimeout, "timeout", 30*time.Second, "per-attempt delivery timeout")
	pendingFlushCmd.Flags().StringVar(&flushDebugTag, "debug-tag", "", "send as tagged debug pings")
	pendingCmd.AddCommand(pendingListCmd)
	pendingCmd.AddCommand(pendingFlushCmd)
	rootCmd.AddCommand(pendingCmd)
}

// openQueue wires a read/write view of the pending queue. The app ID
// and capacity only matter for enqueueing, which this tool never does.
func openQueue() (*upload.Queue, *metrics.Store, func(), error) {
	conn, err := db.Open(dbURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open data store: %w", err)
	}
	queries, err := db.LoadQueries(conn)
	if err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(level)
	}
	store := metrics.NewStore(queries, log)
	queue := upload.NewQueue(queries, store, "cli", 1, log)
	return queue, store, func() { conn.Close() }, nil
}

func runPendingList(cmd *cobra.Command, args []string) error {
	queue, _, cleanup, err := openQueue()
	if err != nil {
		return err
	}
	defer cleanup()

	uploads, err := queue.List()
	if err != nil {
		return err
	}
	if len(uploads) == 0 {
		fmt.Println("queue empty")
		return nil
	}
	for _, u := range uploads {
		fmt.Printf("%s  %-30s %6d bytes\n", u.DocumentID, u.Path, len(u.Body))
	}
	return nil
}

func runPendingFlush(cmd *cobra.Command, args []string) error {
	if flushEndpoint == "" {
		return fmt.Errorf("--endpoint required")
	}

	queue, store, cleanup, err := openQueue()
	if err != nil {
		return err
	}
	defer cleanup()

	log := logrus.New()
	if level, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(level)
	}
	scheduler := upload.NewScheduler(queue, upload.NewHTTPTransport(flushTimeout), store, upload.SchedulerConfig{
		Endpoint:    flushEndpoint,
		DebugTag:    flushDebugTag,
		BackoffSeed: time.Second,
		BackoffCap:  time.Second,
	}, log)

	before, err := queue.Count()
	if err != nil {
		return err
	}
	if err := scheduler.DrainQueue(context.Background()); err != nil {
		return err
	}
	after, err := queue.Count()
	if err != nil {
		return err
	}
	fmt.Printf("delivered %d pings, %d remaining\n", before-after, after)
	return nil
}
