package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dukex/dagstudio/pkg/execution"
	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/session"
)

func printJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}

	return t.Local().Format(time.DateTime)
}

func printHistory(out io.Writer, h session.History) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ID\tNAME\tNODES\tEDGES\tUPDATED\tLAST RUN")

	for _, item := range h.Items {
		lastRun := "-"
		if item.LastExecution != nil {
			lastRun = string(item.LastExecution.Status)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			item.ID, item.Name, item.NodeCount, item.EdgeCount, formatTime(&item.UpdatedAt), lastRun)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "Showing %d of %d workflows\n", len(h.Items), h.Total)

	return err
}

func printVersions(out io.Writer, list *models.VersionList) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "VERSION\tNAME\tCREATED")

	for _, v := range list.Versions {
		marker := ""
		if v.VersionNumber == list.CurrentVersion {
			marker = " (current)"
		}

		_, _ = fmt.Fprintf(w, "%d%s\t%s\t%s\n", v.VersionNumber, marker, v.Name, formatTime(&v.CreatedAt))
	}

	return w.Flush()
}

func printExecution(out io.Writer, s execution.Snapshot) error {
	status := string(s.State)
	if s.Execution != nil {
		status = string(s.Execution.Status)
	}

	_, _ = fmt.Fprintf(out, "Execution %s: %s\n", s.ExecutionID, status)

	if s.Execution != nil {
		if d, ok := s.Execution.Duration(); ok {
			_, _ = fmt.Fprintf(out, "Duration: %s\n", d.Round(time.Millisecond))
		}
	}

	if s.Error != "" {
		_, err := fmt.Fprintf(out, "Error: %s\n", s.Error)

		return err
	}

	if s.Result == nil {
		return nil
	}

	_, _ = fmt.Fprintln(out, "Result:")

	return printJSON(out, s.Result)
}
