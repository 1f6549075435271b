package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rtagsd/rtagsd/internal/config"
	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/logx"
	"github.com/rtagsd/rtagsd/internal/match"
	"github.com/rtagsd/rtagsd/internal/persist"
	"github.com/rtagsd/rtagsd/internal/project"
	"github.com/rtagsd/rtagsd/internal/tsparser"
	"github.com/rtagsd/rtagsd/internal/watch"
)

var (
	cfg          *config.Config
	logger       *logx.Logger
	cleanupFuncs []func()
)

func main() {
	app := &cli.App{
		Name:                   "rtagsd",
		Usage:                  "C/C++ source indexing daemon",
		Version:                "0.1.0",
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (overrides .rtagsd.kdl)",
				Value:   ".",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log at debug level",
			},
		},
		Before: func(c *cli.Context) error {
			root := c.String("root")
			loaded, err := config.LoadKDL(root)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if loaded == nil {
				loaded = config.Default()
				if abs, err := filepath.Abs(root); err == nil {
					loaded.Project.Root = abs
				}
			}
			if err := loaded.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			cfg = loaded

			level := logx.LevelWarning
			if c.Bool("verbose") {
				level = logx.LevelDebug
			}
			logger = logx.New(os.Stderr, level)
			return nil
		},
		Commands: []*cli.Command{
			indexCommand(),
			queryCommand(),
			statusCommand(),
			daemonCommand(),
			reindexCommand(),
			removeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rtagsd: %v\n", err)
		for _, fn := range cleanupFuncs {
			fn()
		}
		os.Exit(1)
	}
	for _, fn := range cleanupFuncs {
		fn()
	}
}

func dbPath() string {
	return filepath.Join(cfg.Project.Root, cfg.Index.DataDir, "db")
}

// openProject restores the persisted database if present, otherwise starts
// empty, and wires the tree-sitter-cpp parser as the opaque Parser (spec
// §9's "libclang is an opaque parser").
func openProject(ctx context.Context) *project.Project {
	parser := tsparser.New()

	path := dbPath()
	if _, err := os.Stat(path); err == nil {
		res, err := persist.Restore(path)
		if err != nil {
			logger.Warnf("restore failed, starting empty: %v", err)
			return project.New(ctx, cfg, parser, logger)
		}
		return project.NewFromRestore(ctx, cfg, parser, logger, res.Files, res.USRs, res.DB, res.Modified)
	}
	return project.New(ctx, cfg, parser, logger)
}

func saveProject(p *project.Project) error {
	path := dbPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return persist.Save(path, p.Files(), p.USRs(), p.Database())
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "Index one source file with an explicit build command",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "compiler", Value: "cc"},
			&cli.StringSliceFlag{Name: "arg"},
			&cli.StringSliceFlag{Name: "define", Aliases: []string{"D"}},
			&cli.StringSliceFlag{Name: "include-path", Aliases: []string{"I"}},
			&cli.StringSliceFlag{Name: "include"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("index requires a <path> argument")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			p := openProject(ctx)

			p.IndexPath(path, c.String("compiler"), c.StringSlice("arg"), c.StringSlice("define"), c.StringSlice("include-path"), c.StringSlice("include"))

			waitForIdle(p)

			if err := saveProject(p); err != nil {
				return fmt.Errorf("failed to save index: %w", err)
			}
			fmt.Printf("indexed %s\n", path)
			return nil
		},
	}
}

// waitForIdle polls IsIndexing rather than blocking on a channel: the
// project's pendingJobs counter (§4.G) has no "all done" signal of its own,
// only onSave/onSync callbacks keyed to debounce timers that a one-shot CLI
// invocation doesn't want to wait through.
func waitForIdle(p *project.Project) {
	for p.IsIndexing() {
		time.Sleep(20 * time.Millisecond)
	}
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Read-only lookups against the persisted index",
		Subcommands: []*cli.Command{
			{
				Name:      "cursor",
				Usage:     "Resolve a symbol at <path>:<line>:<column>",
				ArgsUsage: "<path>:<line>:<column>",
				Action: func(c *cli.Context) error {
					path, line, col, err := parsePathLoc(c.Args().First())
					if err != nil {
						return err
					}
					ctx, cancel := context.WithCancel(context.Background())
					defer cancel()
					p := openProject(ctx)

					fileID, ok := p.Files().Lookup(path)
					if !ok {
						return fmt.Errorf("unknown path: %s", path)
					}
					cursor, ok := p.Cursor(location.Location{File: fileID, Line: line, Column: col})
					if !ok {
						fmt.Println("no symbol at that location")
						return nil
					}
					printCursor(p, cursor)
					return nil
				},
			},
			{
				Name:      "references",
				Usage:     "List references to the symbol at <path>:<line>:<column>",
				ArgsUsage: "<path>:<line>:<column>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "Include the symbol's own declarations and definitions"},
					&cli.BoolFlag{Name: "virtuals", Usage: "Include virtual override siblings"},
					&cli.StringFlag{Name: "filter", Usage: "Only report paths containing this substring"},
				},
				Action: func(c *cli.Context) error {
					path, line, col, err := parsePathLoc(c.Args().First())
					if err != nil {
						return err
					}
					ctx, cancel := context.WithCancel(context.Background())
					defer cancel()
					p := openProject(ctx)

					fileID, ok := p.Files().Lookup(path)
					if !ok {
						return fmt.Errorf("unknown path: %s", path)
					}
					var flags project.ReferenceFlags
					if c.Bool("all") {
						flags |= project.AllReferences
					}
					if c.Bool("virtuals") {
						flags |= project.FindVirtuals
					}
					locs := p.References(location.Location{File: fileID, Line: line, Column: col}, flags, c.String("filter"))
					for _, l := range locs {
						fmt.Printf("%s:%d:%d\n", p.Files().Path(l.File), l.Line, l.Column)
					}
					return nil
				},
			},
			{
				Name:      "list-symbols",
				Usage:     "List every symbol name with the given prefix",
				ArgsUsage: "<prefix>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "filter", Usage: "Only names with a decl/def under this path substring"},
				},
				Action: func(c *cli.Context) error {
					ctx, cancel := context.WithCancel(context.Background())
					defer cancel()
					p := openProject(ctx)
					for _, name := range p.ListSymbols(c.Args().First(), c.String("filter")) {
						fmt.Println(name)
					}
					return nil
				},
			},
			{
				Name:      "find-cursors",
				Usage:     "Find every cursor bound to an exact symbol name",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "filter", Usage: "Only report paths containing this substring"},
				},
				Action: func(c *cli.Context) error {
					ctx, cancel := context.WithCancel(context.Background())
					defer cancel()
					p := openProject(ctx)
					for _, cursor := range p.FindCursors(c.Args().First(), c.String("filter")) {
						printCursor(p, cursor)
					}
					return nil
				},
			},
			{
				Name:      "dependencies",
				Usage:     "List a file's transitive include dependencies, or its dependents",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reverse", Usage: "List files that depend on <path> instead of what it depends on"},
				},
				Action: func(c *cli.Context) error {
					ctx, cancel := context.WithCancel(context.Background())
					defer cancel()
					p := openProject(ctx)
					mode := project.DependsOnArg
					if c.Bool("reverse") {
						mode = project.ArgDependsOn
					}
					for _, path := range p.Dependencies(c.Args().First(), mode) {
						fmt.Println(path)
					}
					return nil
				},
			},
			{
				Name:      "fixits",
				Usage:     "Print the recorded fix-its for <path>",
				ArgsUsage: "<path>",
				Action: func(c *cli.Context) error {
					ctx, cancel := context.WithCancel(context.Background())
					defer cancel()
					p := openProject(ctx)
					fmt.Print(p.FixIts(c.Args().First()))
					return nil
				},
			},
		},
	}
}

func printCursor(p *project.Project, cur project.Cursor) {
	loc := cur.Location
	fmt.Printf("%s:%d:%d\t%s", p.Files().Path(loc.File), loc.Line, loc.Column, cur.Kind)
	if !cur.Target.IsNull() {
		fmt.Printf("\t-> %s:%d:%d", p.Files().Path(cur.Target.File), cur.Target.Line, cur.Target.Column)
	}
	fmt.Println()
}

func parsePathLoc(arg string) (path string, line, col uint32, err error) {
	if arg == "" {
		return "", 0, 0, fmt.Errorf("expected <path>:<line>:<column>")
	}
	idx := strings.LastIndex(arg, ":")
	if idx < 0 {
		return "", 0, 0, fmt.Errorf("expected <path>:<line>:<column>, got %q", arg)
	}
	colIdx := strings.LastIndex(arg[:idx], ":")
	if colIdx < 0 {
		return "", 0, 0, fmt.Errorf("expected <path>:<line>:<column>, got %q", arg)
	}
	var l, c int
	if _, err := fmt.Sscanf(arg[colIdx+1:idx], "%d", &l); err != nil {
		return "", 0, 0, fmt.Errorf("bad line in %q: %w", arg, err)
	}
	if _, err := fmt.Sscanf(arg[idx+1:], "%d", &c); err != nil {
		return "", 0, 0, fmt.Errorf("bad column in %q: %w", arg, err)
	}
	return arg[:colIdx], uint32(l), uint32(c), nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Report whether the persisted index has jobs in flight",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			p := openProject(ctx)
			fmt.Printf("indexing: %v\n", p.IsIndexing())
			fmt.Printf("sources: %d\n", len(p.Database().Sources()))
			return nil
		},
	}
}

func reindexCommand() *cli.Command {
	return &cli.Command{
		Name:      "reindex",
		Usage:     "Re-run every recorded build whose source path matches a pattern",
		ArgsUsage: "[pattern]",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			p := openProject(ctx)

			m := match.Empty
			if pattern := c.Args().First(); pattern != "" {
				m = match.New(pattern)
			}
			n := p.Reindex(m)
			waitForIdle(p)
			if err := saveProject(p); err != nil {
				return fmt.Errorf("failed to save index: %w", err)
			}
			fmt.Printf("reindexed %d source(s)\n", n)
			return nil
		},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Drop every tracked file whose path matches a pattern from the index",
		ArgsUsage: "<pattern>",
		Action: func(c *cli.Context) error {
			pattern := c.Args().First()
			if pattern == "" {
				return fmt.Errorf("remove requires a <pattern> argument")
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			p := openProject(ctx)

			n := p.Remove(match.New(pattern))
			if err := saveProject(p); err != nil {
				return fmt.Errorf("failed to save index: %w", err)
			}
			fmt.Printf("removed %d file(s)\n", n)
			return nil
		},
	}
}

func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Watch the project tree and keep the index up to date",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			p := openProject(ctx)
			p.SetOnSave(func() {
				if err := saveProject(p); err != nil {
					logger.Errorf("save failed: %v", err)
				}
			})
			p.SetOnSync(func() {
				logger.Debugf("sync complete")
			})

			w, err := watch.New()
			if err != nil {
				return fmt.Errorf("failed to start file watcher: %w", err)
			}
			cleanupFuncs = append(cleanupFuncs, func() { w.Close() })

			if err := w.Add(cfg.Project.Root); err != nil {
				return fmt.Errorf("failed to watch %s: %w", cfg.Project.Root, err)
			}

			errChan := make(chan error, 1)
			go func() {
				w.Run(ctx, func(ev watch.Event) {
					var kind project.ModifiedKind
					switch ev.Kind {
					case watch.Created:
						kind = project.ModifiedCreated
					case watch.Removed:
						kind = project.ModifiedRemoved
					default:
						kind = project.ModifiedChanged
					}
					p.FileModified(ev.Path, kind)
				})
				errChan <- nil
			}()
			go func() {
				for err := range w.Errors() {
					logger.Warnf("watch error: %v", err)
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errChan:
				if err != nil {
					return err
				}
			case sig := <-sigChan:
				logger.Warnf("received %v, shutting down", sig)
				cancel()

				shutdownTimer := time.NewTimer(2 * time.Second)
				defer shutdownTimer.Stop()
				select {
				case <-errChan:
				case <-shutdownTimer.C:
					logger.Warnf("graceful shutdown timed out, forcing exit")
				}
			}

			return saveProject(p)
		},
	}
}
