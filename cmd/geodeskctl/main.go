// Command geodeskctl is the operator CLI for a running geodesk server.
//
// Subcommands:
//
//	files                      list the stored polygon files
//	history -file F [-school S]  list saved versions for a file
//	save-all                   persist every file into the database
//	stats -file F              feature counts per school for a file
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/mirrorlake/geodesk/internal/client"
	"github.com/mirrorlake/geodesk/internal/geo"
	"github.com/mirrorlake/geodesk/internal/httputil"
	"github.com/mirrorlake/geodesk/internal/respcache"
	"github.com/mirrorlake/geodesk/internal/timeutil"
)

func main() {
	var server string
	flag.StringVar(&server, "server", "http://localhost:8080", "geodesk server address")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		log.Fatal("subcommand required: files | history | save-all | stats")
	}

	api := client.New(server, httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second}), respcache.New(timeutil.RealClock{}))
	ctx := context.Background()

	var err error
	switch args[0] {
	case "files":
		err = runFiles(ctx, api)
	case "history":
		err = runHistory(ctx, api, args[1:])
	case "save-all":
		err = runSaveAll(ctx, api)
	case "stats":
		err = runStats(ctx, api, args[1:])
	default:
		log.Fatalf("unknown subcommand %q", args[0])
	}
	if err != nil {
		log.Fatalf("%s failed: %v", args[0], err)
	}
}

func runFiles(ctx context.Context, api *client.Client) error {
	files, err := api.ListFiles(ctx, true)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return nil
}

func runHistory(ctx context.Context, api *client.Client, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	file := fs.String("file", "", "polygon file name (required)")
	school := fs.String("school", "", "restrict to one school")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	versions, err := api.HistoryList(ctx, *file, *school, true)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Println("no saved versions")
		return nil
	}
	for _, v := range versions {
		line := fmt.Sprintf("%s  %s", v.SavedAt.Format(time.RFC3339), v.SaveID)
		if v.SchoolName != "" {
			line += "  school=" + v.SchoolName
		}
		fmt.Println(line)
	}
	return nil
}

func runSaveAll(ctx context.Context, api *client.Client) error {
	res, err := api.SaveAll(ctx)
	if err != nil {
		return err
	}
	if len(res.Errors) == 0 {
		fmt.Println("all files saved")
		return nil
	}
	for _, e := range res.Errors {
		fmt.Fprintln(os.Stderr, e)
	}
	return fmt.Errorf("%d files failed", len(res.Errors))
}

func runStats(ctx context.Context, api *client.Client, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	file := fs.String("file", "", "polygon file name (required)")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	fc, err := api.Polygons(ctx, *file, true)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, f := range fc.Features {
		name, _ := f.Properties[geo.SchoolNameProperty].(string)
		if name == "" {
			name = "(unnamed)"
		}
		counts[name]++
	}

	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Printf("%s: %d features, %d schools\n", *file, len(fc.Features), len(names))
	for _, n := range names {
		fmt.Printf("  %-30s %d\n", n, counts[n])
	}
	return nil
}
