package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bulldra/bookrag/internal/logging"
)

type logsOptions struct {
	lines   int
	level   string
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log entries",
		Long: `Show the tail of the bookrag log file in readable form.

Examples:
  bookrag logs
  bookrag logs -n 100
  bookrag logs --level warn`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Log file path (default: the standard log location)")

	return cmd
}

// logEntry is the subset of the JSON log record shown by the viewer.
type logEntry struct {
	Time  time.Time `json:"time"`
	Level string    `json:"level"`
	Msg   string    `json:"msg"`
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	minLevel := logging.LevelFromString(opts.level)

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading log file: %w", err)
	}

	if opts.lines > 0 && len(lines) > opts.lines {
		lines = lines[len(lines)-opts.lines:]
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(cmd.ErrOrStderr(), "Log file: %s\n---\n", path)
	for _, line := range lines {
		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			fmt.Fprintln(w, line)
			continue
		}
		if opts.level != "" && logging.LevelFromString(entry.Level) < minLevel {
			continue
		}
		fmt.Fprintf(w, "%s %-5s %s%s\n",
			entry.Time.Format("15:04:05"),
			strings.ToUpper(entry.Level),
			entry.Msg,
			formatAttrs(line))
	}
	return nil
}

// formatAttrs renders the non-standard fields of a JSON log record as
// sorted key=value pairs.
func formatAttrs(line string) string {
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return ""
	}
	delete(record, "time")
	delete(record, "level")
	delete(record, "msg")
	if len(record) == 0 {
		return ""
	}

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, record[k])
	}
	return b.String()
}
