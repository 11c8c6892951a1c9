package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/relmart/internal/app"
	"github.com/yungbote/relmart/internal/definitions"
	"github.com/yungbote/relmart/internal/domain/artifact"
	"github.com/yungbote/relmart/internal/mart"
)

type nameList []string

func (l *nameList) String() string { return strings.Join(*l, ",") }
func (l *nameList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

func main() {
	var names nameList
	var skipCreate bool
	var windowStart, windowEnd string
	flag.Var(&names, "artifact", "artifact name to refresh (repeatable; default all)")
	flag.BoolVar(&skipCreate, "skip-create", false, "refresh only, do not create missing relations")
	flag.StringVar(&windowStart, "window-start", "", "override incremental window start (YYYY-MM-DD)")
	flag.StringVar(&windowEnd, "window-end", "", "override incremental window end (YYYY-MM-DD)")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()

	loaders := definitions.Bootstrap(application.Cfg.TargetSchema)
	if err := application.Registry.Discover(loaders, false); err != nil {
		fmt.Printf("artifact discovery failed: %v\n", err)
		os.Exit(1)
	}

	defs := application.Registry.GetAll()
	if len(names) > 0 {
		selected := make([]*artifact.Definition, 0, len(names))
		for _, name := range names {
			def, ok := application.Registry.Get(name)
			if !ok {
				fmt.Printf("unknown artifact %q; known: %s\n",
					name, strings.Join(application.Registry.ListAll(), ", "))
				os.Exit(1)
			}
			selected = append(selected, def)
		}
		defs = selected
	}

	var opts []mart.RefreshOption
	if windowStart != "" && windowEnd != "" {
		start, err1 := time.Parse("2006-01-02", windowStart)
		end, err2 := time.Parse("2006-01-02", windowEnd)
		if err1 != nil || err2 != nil {
			fmt.Println("window overrides must be YYYY-MM-DD")
			os.Exit(1)
		}
		opts = append(opts, mart.WithWindow(start, end))
	}

	var mu sync.Mutex
	var results []artifact.Result

	// One goroutine per artifact keeps each artifact's refresh strictly
	// serial; the group limit only bounds how many artifacts run at once.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(application.Cfg.RefreshConcurrency)
	for _, def := range defs {
		g.Go(func() error {
			handle := application.Artifact(def)
			if !skipCreate {
				if _, err := handle.Create(gctx, true); err != nil {
					return fmt.Errorf("create %s: %w", def.Name, err)
				}
			}
			res, err := handle.Refresh(gctx, opts...)
			if err != nil {
				return fmt.Errorf("refresh %s: %w", def.Name, err)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Printf("refresh run aborted: %v\n", err)
		os.Exit(1)
	}

	failed := 0
	for _, res := range results {
		line := fmt.Sprintf("%s.%s strategy=%s status=%s rows=%d duration=%s",
			res.SchemaName, res.ViewName, res.Strategy, res.Status, res.RowCount, res.Duration)
		if res.Failed() {
			failed++
			line += " error=" + res.Error
		}
		fmt.Println(line)
	}
	fmt.Printf("done; refreshed=%d failed=%d\n", len(results), failed)
	if failed > 0 {
		os.Exit(1)
	}
}
