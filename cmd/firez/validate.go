package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/firez"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flags] file...",
	Short: "Check that artifacts are well-formed",
	Long:  `Validate imports every artifact and reports the ones that violate the tree format`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().IntP("jobs", "j", 0, "files checked in parallel (0 = GOMAXPROCS)")
}

type validateResult struct {
	err   error
	nodes int
}

func runValidate(cmd *cobra.Command, args []string) error {
	setupColor(cmd)

	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	results := validateFiles(cmd.Context(), args, jobs)

	out := cmd.OutOrStdout()
	ok, bad := color.New(color.FgGreen), color.New(color.FgRed)
	failed := 0
	for i, path := range args {
		r := results[i]
		if r.err != nil {
			failed++
			fmt.Fprintf(out, "%s %s: %v\n", bad.Sprint("FAIL"), path, r.err)
			continue
		}
		fmt.Fprintf(out, "%s %s (%d nodes)\n", ok.Sprint("ok  "), path, r.nodes)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d artifacts invalid", failed, len(args))
	}
	return nil
}

// validateFiles imports every file concurrently. Results are indexed like
// files; each goroutine writes only its own slot.
func validateFiles(ctx context.Context, files []string, jobs int) []validateResult {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]validateResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].err = err
				return nil
			}
			tree, err := firez.ImportFile(path)
			if err != nil {
				results[i].err = describe(err)
				return nil
			}
			results[i].nodes = tree.Len()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // per-file errors live in results
	return results
}

func describe(err error) error {
	if errors.Is(err, firez.ErrMalformedTree) {
		return fmt.Errorf("malformed: %w", err)
	}
	return err
}
