package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentuity/go-memoize"
	"github.com/agentuity/go-memoize/store"
)

var (
	flagTTL     string
	flagMax     int
	flagFile    string
	flagUID     string
	flagCalls   int
	flagArg     int
	flagVerbose bool
)

// slowSquare is the deliberately expensive function the demo memoizes.
func slowSquare(args ...any) (any, error) {
	time.Sleep(250 * time.Millisecond)
	n := args[0].(int)
	return n * n, nil
}

var rootCmd = &cobra.Command{
	Use:   "memoize-demo",
	Short: "Demonstrates transparent function-result caching",
	Long: `memoize-demo wraps a deliberately slow function and calls it repeatedly
with the same argument, printing per-call latency so the cache hits are
visible. With --file, results persist across runs through the file-backed
store.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		opts := []memoize.Option{memoize.WithUID(flagUID)}
		if flagTTL != "" {
			opts = append(opts, memoize.WithTTLString(flagTTL))
		}
		if flagMax > 0 {
			opts = append(opts, memoize.WithMaxRecords(flagMax))
		}

		var events chan memoize.Event
		if flagVerbose {
			events = make(chan memoize.Event, 64)
			opts = append(opts, memoize.WithNotify(events))
		}

		var fileStore *store.File
		if flagFile != "" {
			fs, err := store.NewFile(flagFile)
			if err != nil {
				return err
			}
			fileStore = fs
			opts = append(opts, memoize.WithController(fs))
		}

		fn, err := memoize.New(slowSquare, opts...)
		if err != nil {
			return err
		}

		for i := 0; i < flagCalls; i++ {
			start := time.Now()
			v, err := fn.Call(ctx, flagArg)
			if err != nil {
				return err
			}
			fmt.Printf("call %d: slowSquare(%d) = %v (%s)\n", i+1, flagArg, v, time.Since(start).Round(time.Millisecond))
		}

		if flagVerbose {
			drain(events)
		}
		if fileStore != nil {
			return fileStore.Close()
		}
		return nil
	},
}

func drain(events chan memoize.Event) {
	for {
		select {
		case ev := <-events:
			fmt.Printf("event: %s key=%s\n", ev.Type, ev.Key)
		default:
			return
		}
	}
}

func main() {
	rootCmd.Flags().StringVar(&flagTTL, "ttl", "", "time-to-live for cached results (e.g. 30s, 5m)")
	rootCmd.Flags().IntVar(&flagMax, "max-records", 0, "maximum stored records before eviction")
	rootCmd.Flags().StringVar(&flagFile, "file", "", "persist the cache to this file")
	rootCmd.Flags().StringVar(&flagUID, "uid", "memoize-demo", "cache namespace")
	rootCmd.Flags().IntVar(&flagCalls, "calls", 3, "number of calls to issue")
	rootCmd.Flags().IntVar(&flagArg, "arg", 7, "argument to pass on every call")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "print engine events after the calls")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
