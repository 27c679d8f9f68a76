// Command taskpoolmon is a small terminal monitor for a running
// taskpool.Dispatcher: it renders queue depth, worker count, and the
// completed/retried/failed counters, refreshing on an interval. It exists
// purely as an example collaborator of the core, driving a synthetic
// workload so the dispatcher has something to report on.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"

	"github.com/harborq/taskpool/pool"
)

func main() {
	workers := flag.Int("workers", 4, "starting worker count")
	tick := flag.Duration("tick", 50*time.Millisecond, "adaptive sizing tick (0 disables)")
	tasks := flag.Int("tasks", 500, "synthetic tasks to submit")
	refresh := flag.Duration("refresh", 200*time.Millisecond, "monitor refresh interval")
	flag.Parse()

	d := pool.New[int](
		pool.WithWorkers(*workers),
		pool.WithTick(*tick),
	)
	defer d.Shutdown(10 * time.Second)

	bar := progressbar.NewOptions(*tasks,
		progressbar.OptionSetDescription("submitting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
	)

	stopMonitor := make(chan struct{})
	go monitor(d, *refresh, stopMonitor)

	futures := make([]*pool.Future[int], 0, *tasks)
	for i := 0; i < *tasks; i++ {
		n := i
		fut, err := d.Submit(func() (int, error) {
			time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
			return n * n, nil
		})
		if err != nil {
			colorPrintln(color.New(color.FgRed), "submit failed: %v", err)
			continue
		}
		futures = append(futures, fut)
		_ = bar.Add(1)
	}

	sum := 0
	for _, f := range futures {
		v, err := f.Get()
		if err == nil {
			sum += v
		}
	}
	close(stopMonitor)

	fmt.Println()
	colorPrintln(color.New(color.FgGreen, color.Bold), "done: sum=%d", sum)
	renderFinalStats(d.Stats())
}

func monitor(d *pool.Dispatcher[int], refresh time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stats := d.Stats()
			fmt.Printf("\rqueued=%-6d workers=%-4d completed=%-8d retried=%-6d failed=%-6d",
				d.QueuedSize(), d.WorkersSize(), stats.Completed, stats.Retried, stats.Failed)
		}
	}
}

func renderFinalStats(s pool.Stats) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Completed", "Retried", "Failed")
	_ = table.Append(
		fmt.Sprintf("%d", s.Completed),
		fmt.Sprintf("%d", s.Retried),
		fmt.Sprintf("%d", s.Failed),
	)
	_ = table.Render()
}

func colorPrintln(c *color.Color, format string, a ...any) {
	_, _ = c.Println(fmt.Sprintf(format, a...))
}
