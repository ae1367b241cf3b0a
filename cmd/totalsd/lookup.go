package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/VenkatGGG/taxa-totals/internal/config"
	"github.com/VenkatGGG/taxa-totals/internal/remote"
	"github.com/VenkatGGG/taxa-totals/internal/taxon"
)

type lookupOptions struct {
	timeout time.Duration
	offline bool
	fixture string
	verbose bool
}

func newLookupCmd(root *rootOptions) *cobra.Command {
	opts := &lookupOptions{}
	cmd := &cobra.Command{
		Use:   "lookup <id>...",
		Short: "Resolve ids once and print id<TAB>total",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			ids := make([]taxon.ID, 0, len(args))
			for _, arg := range args {
				id, err := taxon.ParseID(arg)
				if err != nil {
					return fmt.Errorf("%q: %w", arg, err)
				}
				ids = append(ids, id)
			}

			var client remote.Client
			if opts.offline {
				static, err := loadFixture(opts.fixture)
				if err != nil {
					return err
				}
				client = static
			}

			logger := log.New(io.Discard, "", 0)
			if opts.verbose {
				logger = log.New(cmd.ErrOrStderr(), "totalsd ", log.LstdFlags)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return runLookup(ctx, cfg, client, ids, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "give up on ids still unresolved after this long")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "never call the remote API; answer from the store and --fixture")
	cmd.Flags().StringVar(&opts.fixture, "fixture", "", "YAML map of id: total served in --offline mode")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline activity to stderr")
	return cmd
}

func runLookup(ctx context.Context, cfg config.Config, client remote.Client, ids []taxon.ID, out io.Writer, logger *log.Logger) error {
	a, err := buildApp(ctx, cfg, client, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ids = taxon.Unique(ids)
	var (
		mu    sync.Mutex
		found = make(map[taxon.ID]int64, len(ids))
		done  = make(chan struct{})
	)
	collect := func(id taxon.ID, total int64) {
		mu.Lock()
		defer mu.Unlock()
		if _, seen := found[id]; seen {
			return
		}
		found[id] = total
		if len(found) == len(ids) {
			close(done)
		}
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go a.engine.Run(loopCtx)

	a.engine.Discover(ctx, ids, collect)
	select {
	case <-done:
	case <-ctx.Done():
	}
	stopLoop()

	mu.Lock()
	defer mu.Unlock()
	sorted := append([]taxon.ID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	unresolved := 0
	for _, id := range sorted {
		total, ok := found[id]
		if !ok {
			unresolved++
			fmt.Fprintf(out, "%s\tpending\n", id)
			continue
		}
		fmt.Fprintf(out, "%s\t%d\n", id, total)
	}
	if unresolved > 0 {
		return fmt.Errorf("%d of %d ids unresolved", unresolved, len(ids))
	}
	return nil
}

func loadFixture(path string) (*remote.StaticClient, error) {
	totals := make(map[taxon.ID]int64)
	if path == "" {
		return remote.NewStaticClient(totals), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var parsed map[int64]int64
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	for id, total := range parsed {
		if !taxon.ID(id).Valid() {
			return nil, fmt.Errorf("fixture %s: %w: %d", path, taxon.ErrInvalidID, id)
		}
		totals[taxon.ID(id)] = total
	}
	return remote.NewStaticClient(totals), nil
}
