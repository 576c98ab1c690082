package alert

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

var levelTags = map[types.AlertLevel]string{
	types.AlertLevelCritical: color.New(color.FgHiRed, color.Bold).Sprint("CRIT "),
	types.AlertLevelError:    color.RedString("ERROR"),
	types.AlertLevelWarning:  color.YellowString("WARN "),
	types.AlertLevelInfo:     color.CyanString("INFO "),
}

// ConsoleSink prints one colored line per alert, followed by its metadata
// as sorted key=value pairs.
type ConsoleSink struct {
	out io.Writer
}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: color.Output}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Send(_ context.Context, alert types.Alert) error {
	tag, ok := levelTags[alert.Level]
	if !ok {
		tag = levelTags[types.AlertLevelInfo]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %-8s %s: %s", alert.Timestamp.UTC().Format(time.TimeOnly), tag, alert.Source, alert.Title, alert.Message)
	if len(alert.Metadata) > 0 {
		keys := make([]string, 0, len(alert.Metadata))
		for k := range alert.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", color.New(color.Faint).Sprint(k), alert.Metadata[k])
		}
	}
	b.WriteByte('\n')

	_, err := io.WriteString(s.out, b.String())
	return err
}
