package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/designmap/pkg/observability"
)

// DefaultWatchDebounce coalesces the bursts of events editors emit on save.
const DefaultWatchDebounce = 300 * time.Millisecond

// ErrWatchStdin is returned when watch is given standard input.
var ErrWatchStdin = errors.New("watch needs a file path, not stdin")

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *appOptions) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <export.json>",
		Short: "Re-classify an export whenever it changes",
		Long: `Classify an export, then watch it and print fresh JSON records after every
change. Unchanged subtrees are served from the result cache. Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if path == stdinPath {
				return ErrWatchStdin
			}

			return withApp(cmd, opts, observability.ModeCLI, func(application *app) error {
				classifyFile := func(ctx context.Context) {
					doc, err := loadExport(cmd, path)
					if err == nil {
						err = classifyTo(ctx, application, doc, cmd.OutOrStdout())
					}

					if err != nil {
						application.logger.ErrorContext(ctx, "classify failed", "path", path, "error", err)

						return
					}

					stats := application.results.Stats()
					application.logger.InfoContext(ctx, "classified",
						"path", path, "cache_hits", stats.Hits, "cache_misses", stats.Misses)
				}

				classifyFile(cmd.Context())

				return WatchFile(cmd.Context(), path, debounce, classifyFile)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.nested, "nested", false, "also classify instances nested inside other instances")
	cmd.Flags().DurationVar(&debounce, "debounce", DefaultWatchDebounce, "quiet period before re-classifying")

	return cmd
}

// WatchFile calls onChange after path is written, created or replaced and
// then stays quiet for debounce. It watches the parent directory so
// editors that save by rename keep being observed. It returns nil when ctx
// is canceled.
func WatchFile(ctx context.Context, path string, debounce time.Duration, onChange func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	err = watcher.Add(filepath.Dir(target))
	if err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}

			timer.Reset(debounce)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			return fmt.Errorf("watch %s: %w", path, watchErr)
		case <-timer.C:
			onChange(ctx)
		}
	}
}
