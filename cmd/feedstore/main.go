// Command feedstore is a local CLI over a single feed-store instance,
// grounded on the teacher's cmd/flo/main.go: cobra command tree, env-driven
// log level, and RedirectStdLog so Pebble's stdlib logger goes through the
// same structured logger as everything else.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dxos-deprecated/feed-store/internal/config"
	"github.com/dxos-deprecated/feed-store/internal/feedstore"
	"github.com/dxos-deprecated/feed-store/internal/predicate"
	"github.com/dxos-deprecated/feed-store/internal/runtime"
	logpkg "github.com/dxos-deprecated/feed-store/pkg/log"
)

func main() {
	level, err := logpkg.ParseLevel(os.Getenv("FEEDSTORE_LOG_LEVEL"))
	if err != nil {
		level = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(level),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	).With(logpkg.Str("invocation", uuid.NewString()))

	logpkg.RedirectStdLog(logger)

	root := &cobra.Command{
		Use:   "feedstore",
		Short: "Inspect and drive a local feed-store instance",
	}
	root.PersistentFlags().String("data-dir", os.Getenv("FEEDSTORE_DATA_DIR"), "Data directory (empty uses an in-memory store)")

	root.AddCommand(
		newOpenCmd(logger),
		newAppendCmd(logger),
		newHeadCmd(logger),
		newListCmd(logger),
		newTailCmd(logger),
		newRemoveCmd(logger),
	)

	if err := root.Execute(); err != nil {
		logger.Error("command failed", logpkg.Err(err))
		os.Exit(1)
	}
}

func openRuntime(cmd *cobra.Command) (*runtime.Runtime, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	cfg := config.Default()
	config.FromEnv(&cfg)
	return runtime.Open(runtime.Options{DataDir: dataDir, Config: cfg})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newOpenCmd(logger logpkg.Logger) *cobra.Command {
	var keyHex, valueEncoding string
	cmd := &cobra.Command{
		Use:   "open <path>",
		Short: "Open (creating if absent) the feed at path and print its key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			opts := feedstore.OpenOptions{ValueEncoding: valueEncoding}
			if keyHex != "" {
				key, err := hex.DecodeString(keyHex)
				if err != nil {
					return fmt.Errorf("invalid --key: %w", err)
				}
				opts.Key = key
			}

			ctx, cancel := signalContext()
			defer cancel()
			feed, d, err := rt.Store().OpenFeed(ctx, args[0], opts)
			if err != nil {
				return err
			}
			logger.Info("feed opened", logpkg.Str("path", args[0]), logpkg.Str("key", feedstore.HexKey(d.Key())))
			fmt.Printf("path=%s key=%s length=%d\n", args[0], feedstore.HexKey(d.Key()), feed.Length())
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "Reuse an existing hex-encoded public key")
	cmd.Flags().StringVar(&valueEncoding, "encoding", "", "Value codec name (binary|utf-8|json)")
	return cmd
}

func newAppendCmd(logger logpkg.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append <path> <data>",
		Short: "Append data (read from argv, or stdin if omitted) to the feed at path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			var payload []byte
			if len(args) == 2 {
				payload = []byte(args[1])
			} else {
				payload, err = io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}

			ctx, cancel := signalContext()
			defer cancel()
			feed, _, err := rt.Store().OpenFeed(ctx, args[0], feedstore.OpenOptions{})
			if err != nil {
				return err
			}
			seq, err := feed.Append(ctx, payload)
			if err != nil {
				return err
			}
			logger.Info("appended", logpkg.Str("path", args[0]), logpkg.Int("seq", int(seq)))
			fmt.Println(seq)
			return nil
		},
	}
	return cmd
}

func newHeadCmd(logger logpkg.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "head <path>",
		Short: "Print the most recently appended message on the feed at path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := signalContext()
			defer cancel()
			feed, _, err := rt.Store().OpenFeed(ctx, args[0], feedstore.OpenOptions{})
			if err != nil {
				return err
			}
			length := feed.Length()
			if length == 0 {
				return errors.New("feed is empty")
			}
			data, err := feed.Get(ctx, length-1)
			if err != nil {
				return err
			}
			fmt.Printf("seq=%d %s\n", length-1, data)
			return nil
		},
	}
	return cmd
}

func newListCmd(logger logpkg.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every registered feed path, key, and length",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			for _, d := range rt.Store().GetDescriptors(nil) {
				snap := d.Snapshot()
				length := uint64(0)
				if snap.Feed != nil {
					length = snap.Feed.Length()
				}
				fmt.Printf("%s\t%s\t%s\t%d\n", snap.Path, feedstore.HexKey(snap.Key), snap.State, length)
			}
			return nil
		},
	}
	return cmd
}

// statser is satisfied by every reader family's Stats method; tail uses it
// to print admission counters without caring which reader it attached.
type statser interface {
	Stats() feedstore.ReaderStats
}

func newTailCmd(logger logpkg.Logger) *cobra.Command {
	var expr string
	var ordered bool
	var showStats bool
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow every open feed's live messages, optionally filtered by a CEL expression",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			pred, err := predicate.CEL(expr)
			if err != nil {
				return err
			}

			var messages <-chan feedstore.Message
			var done <-chan struct{}
			var readerID string
			var stats statser
			if ordered {
				r := rt.Store().CreateOrderedReadStream(pred)
				messages, done, readerID, stats = r.Messages(), r.Done(), r.ID(), r
			} else {
				r := rt.Store().CreateSelectiveReadStream(pred)
				messages, done, readerID, stats = r.Messages(), r.Done(), r.ID(), r
			}
			logger.Info("tail reader attached", logpkg.Str("reader", readerID), logpkg.Bool("ordered", ordered))

			ctx, cancel := signalContext()
			defer cancel()

			var statsTick <-chan time.Time
			if showStats {
				ticker := time.NewTicker(2 * time.Second)
				defer ticker.Stop()
				statsTick = ticker.C
			}
			printStats := func() {
				s := stats.Stats()
				fmt.Fprintf(cmd.ErrOrStderr(), "stats\treader=%s attached=%d admitted=%d rejected=%d synced=%d\n",
					readerID, s.Attached, s.Admitted, s.Rejected, s.Synced)
			}
			for {
				select {
				case msg, ok := <-messages:
					if !ok {
						if showStats {
							printStats()
						}
						return nil
					}
					fmt.Printf("%s\t%d\t%s\n", msg.Path, msg.Seq, msg.Data)
				case <-statsTick:
					printStats()
				case <-done:
					if showStats {
						printStats()
					}
					return nil
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	cmd.Flags().StringVar(&expr, "filter", "", "CEL expression over path/key/seq/size/json/metadata")
	cmd.Flags().BoolVar(&ordered, "ordered", false, "Use the fixed-attachment-order reader instead of the unordered one")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Periodically print reader admission counters to stderr")
	return cmd
}

func newRemoveCmd(logger logpkg.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a feed's descriptor from the index (does not erase its blocks)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := signalContext()
			defer cancel()
			if err := rt.Store().DeleteDescriptor(ctx, args[0]); err != nil {
				return err
			}
			logger.Info("descriptor removed", logpkg.Str("path", args[0]))
			return nil
		},
	}
	return cmd
}
