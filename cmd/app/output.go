package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/astrozzc/manageiq-automation-engine/internal/application"
	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
)

func printJSON(v any) error {
	b, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func printImportResult(result application.ImportResult) {
	printKV([][2]string{{"run_id", result.RunID}})
	fmt.Println()

	s := result.Stats
	counters := []struct {
		level application.Level
		c     application.Counter
	}{
		{application.LevelDomain, s.Domain},
		{application.LevelNamespace, s.Namespace},
		{application.LevelClass, s.Class},
		{application.LevelInstance, s.Instance},
		{application.LevelMethod, s.Method},
	}
	rows := make([][]string, 0, len(counters))
	for _, item := range counters {
		rows = append(rows, []string{string(item.level), strconv.Itoa(item.c.Added), strconv.Itoa(item.c.Updated)})
	}
	printTable([]string{"LEVEL", "ADDED", "UPDATED"}, rows)

	if len(result.Domains) > 0 {
		fmt.Println()
		printDomains(result.Domains)
	}
}

func printDomains(items []domain.Domain) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Name,
			strconv.Itoa(item.Priority),
			string(item.Source),
			strconv.FormatBool(item.Enabled),
			strconv.FormatUint(uint64(item.TenantID), 10),
			formatTime(item.UpdatedAt),
		})
	}
	printTable([]string{"ID", "NAME", "PRIORITY", "SOURCE", "ENABLED", "TENANT_ID", "UPDATED_AT"}, rows)
}

func printReferences(items []domain.Reference) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			string(item.Kind),
			item.Name,
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "KIND", "NAME", "CREATED_AT"}, rows)
}
