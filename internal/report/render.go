package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"opprof/internal/view"
)

var (
	headerColor   = color.New(color.FgCyan, color.Bold)
	degradedColor = color.New(color.FgYellow)
	warnColor     = color.New(color.FgYellow, color.Bold)
)

// Render prints a view result as an indented table. Output is meant for
// humans; the deterministic-bytes guarantee applies to the msgpack
// serializer only.
func Render(w io.Writer, title string, res *view.Result, colorize bool) error {
	if res == nil || res.Root == nil {
		return fmt.Errorf("nil view result")
	}
	restore := color.NoColor
	color.NoColor = !colorize
	defer func() { color.NoColor = restore }()

	pr := message.NewPrinter(language.English)

	if _, err := fmt.Fprintf(w, "%s\n", headerColor.Sprint(title)); err != nil {
		return err
	}
	header := fmt.Sprintf("%-48s %12s %12s %14s %10s", "name", "total", "avg", "alloc bytes", "count")
	if _, err := fmt.Fprintf(w, "%s\n", header); err != nil {
		return err
	}

	for _, child := range res.Root.Children {
		if err := renderNode(w, pr, child, 0); err != nil {
			return err
		}
	}

	if res.UnknownOps > 0 {
		line := pr.Sprintf("unknown operations: %d trace records outside the declared topology", res.UnknownOps)
		if _, err := fmt.Fprintf(w, "%s\n", warnColor.Sprint(line)); err != nil {
			return err
		}
	}
	if res.Warnings != nil && res.Warnings.Len() > 0 {
		if _, err := fmt.Fprintf(w, "%s\n", warnColor.Sprintf("warnings: %d", res.Warnings.Len())); err != nil {
			return err
		}
		for _, warning := range res.Warnings.Items() {
			if _, err := fmt.Fprintf(w, "  [%s] %s: %s\n", warning.Code, warning.Op, warning.Msg); err != nil {
				return err
			}
		}
		if dropped := res.Warnings.Dropped(); dropped > 0 {
			if _, err := pr.Fprintf(w, "  ... and %d more\n", dropped); err != nil {
				return err
			}
		}
	}
	return nil
}

func renderNode(w io.Writer, pr *message.Printer, n *view.Node, depth int) error {
	name := strings.Repeat("  ", depth) + displayName(n)
	if n.Degraded {
		name = degradedColor.Sprint(name + " (partial)")
	}
	line := fmt.Sprintf("%-48s %12s %12s %14s %10s",
		name,
		millis(n.Total.TotalTime),
		millis(n.Total.AvgTime()),
		pr.Sprintf("%d", n.Total.AllocBytes),
		pr.Sprintf("%d", n.Total.Count),
	)
	if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := renderNode(w, pr, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func displayName(n *view.Node) string {
	if n.Kind == view.KindType {
		return n.Name + "/*"
	}
	return n.Name
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}
