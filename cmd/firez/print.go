package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zoobzio/firez"
)

var printCmd = &cobra.Command{
	Use:   "print [flags] file",
	Short: "Print the tree stored in an artifact",
	Long:  `Print renders an artifact as an indented tree. Events are labeled with their message.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPrint,
}

func init() {
	printCmd.Flags().Int("max-depth", 0, "stop descending below this depth (0 = unlimited)")
	printCmd.Flags().Bool("ctx", true, "show ctx fields")
}

func runPrint(cmd *cobra.Command, args []string) error {
	setupColor(cmd)

	maxDepth, err := cmd.Flags().GetInt("max-depth")
	if err != nil {
		return fmt.Errorf("failed to get max-depth flag: %w", err)
	}
	showCtx, err := cmd.Flags().GetBool("ctx")
	if err != nil {
		return fmt.Errorf("failed to get ctx flag: %w", err)
	}

	tree, err := firez.ImportFile(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return tree.Walk(func(b firez.Branch, depth int) error {
		if err := printBranch(out, b, depth, showCtx); err != nil {
			return err
		}
		if maxDepth > 0 && depth >= maxDepth {
			return firez.SkipBranch
		}
		return nil
	})
}

var (
	spanColor  = color.New(color.Bold)
	faintColor = color.New(color.Faint)
)

func levelColor(level firez.Level) *color.Color {
	switch firez.Level(strings.ToUpper(string(level))) {
	case firez.LevelError:
		return color.New(color.FgRed, color.Bold)
	case firez.LevelWarn:
		return color.New(color.FgYellow)
	case firez.LevelInfo:
		return color.New(color.FgGreen)
	case firez.LevelDebug:
		return color.New(color.FgBlue)
	default:
		return color.New(color.FgHiBlack)
	}
}

func printBranch(w io.Writer, b firez.Branch, depth int, showCtx bool) error {
	p := b.Payload()
	if p == nil {
		_, err := fmt.Fprintln(w, spanColor.Sprint("$"))
		return err
	}

	var sb strings.Builder
	sb.WriteString(strings.Repeat("  ", depth-1))
	if p.IsSpan() {
		sb.WriteString(spanColor.Sprint("▸ " + p.Label()))
	} else {
		sb.WriteString("• " + p.Label())
	}
	if p.Level != "" {
		sb.WriteString(" " + levelColor(p.Level).Sprintf("[%s]", p.Level))
	}
	if p.Location != nil {
		sb.WriteString(" " + faintColor.Sprint(p.Location.String()))
	}
	if showCtx {
		p.Fields.Range(func(k string, v any) bool {
			// Events show their message as the label.
			if k == firez.MessageKey && !p.IsSpan() {
				return true
			}
			sb.WriteString(" " + faintColor.Sprint(k+"=") + fmt.Sprint(v))
			return true
		})
	}
	_, err := fmt.Fprintln(w, sb.String())
	return err
}
