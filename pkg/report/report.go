package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/datalytyx/databricks-maintenance/pkg/libraries"
	"github.com/datalytyx/databricks-maintenance/pkg/lifecycle"
)

// Format is an output encoding for command results.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

const (
	// UnknownRuntime is shown when no upgrade target could be selected.
	UnknownRuntime = "Unknown"
	// UnknownCluster is shown for clusters without a name.
	UnknownCluster = "Unknown"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want table, json or yaml)", s)
	}
}

// RuntimeRow is one at-risk cluster joined with its recommendation.
type RuntimeRow struct {
	ClusterName        string `json:"cluster_name" yaml:"cluster_name"`
	ClusterID          string `json:"cluster_id" yaml:"cluster_id"`
	CurrentRuntime     string `json:"current_runtime" yaml:"current_runtime"`
	Status             string `json:"status" yaml:"status"`
	DeprecationDate    string `json:"deprecation_date" yaml:"deprecation_date"`
	RecommendedRuntime string `json:"recommended_runtime" yaml:"recommended_runtime"`
	Rationale          string `json:"rationale" yaml:"rationale"`
	Note               string `json:"note,omitempty" yaml:"note,omitempty"`
}

// RuntimeRows joins statuses with their recommendations, keeping status order.
func RuntimeRows(statuses []lifecycle.ClusterRuntimeStatus, recs map[string]lifecycle.RecommendationRecord) []RuntimeRow {
	rows := make([]RuntimeRow, 0, len(statuses))
	for _, s := range statuses {
		row := RuntimeRow{
			ClusterName:        s.ClusterName,
			ClusterID:          s.ClusterID,
			CurrentRuntime:     s.CurrentRuntime,
			Status:             string(s.Status),
			DeprecationDate:    s.DeprecationDate,
			RecommendedRuntime: UnknownRuntime,
			Note:               s.Note,
		}
		if rec, ok := recs[s.ClusterID]; ok {
			row.RecommendedRuntime = rec.RecommendedName
			row.Rationale = rec.Rationale
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteRuntimeRows renders at-risk clusters.
func WriteRuntimeRows(w io.Writer, rows []RuntimeRow, format Format) error {
	if format != FormatTable {
		return encode(w, rows, format)
	}
	header := []string{"CLUSTER NAME", "CLUSTER ID", "CURRENT RUNTIME", "STATUS", "DEPRECATION DATE", "RECOMMENDED RUNTIME", "RATIONALE"}
	return writeTable(w, header, len(rows), func(i int) []string {
		r := rows[i]
		return []string{r.ClusterName, r.ClusterID, r.CurrentRuntime, r.Status, dash(r.DeprecationDate), r.RecommendedRuntime, r.Rationale}
	})
}

// WriteFindings renders library findings.
func WriteFindings(w io.Writer, findings []libraries.Finding, format Format) error {
	if format != FormatTable {
		if findings == nil {
			findings = []libraries.Finding{}
		}
		return encode(w, findings, format)
	}
	header := []string{"LIBRARY", "TYPE", "CURRENT VERSION", "RECOMMENDED VERSION", "REASON", "SEVERITY"}
	return writeTable(w, header, len(findings), func(i int) []string {
		f := findings[i]
		return []string{f.LibraryName, f.Type, f.CurrentVersion, f.RecommendedVersion, f.Reason, strings.ToUpper(string(f.Severity))}
	})
}

// WriteRuntimes renders catalog entries.
func WriteRuntimes(w io.Writer, runtimes []lifecycle.RuntimeVersion, format Format) error {
	if format != FormatTable {
		if runtimes == nil {
			runtimes = []lifecycle.RuntimeVersion{}
		}
		return encode(w, runtimes, format)
	}
	header := []string{"VERSION", "KEY", "NAME"}
	return writeTable(w, header, len(runtimes), func(i int) []string {
		rt := runtimes[i]
		return []string{rt.Version.String(), rt.Key, rt.DisplayName}
	})
}

func writeTable(w io.Writer, header []string, n int, row func(i int) []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for i := 0; i < n; i++ {
		fmt.Fprintln(tw, strings.Join(row(i), "\t"))
	}
	return tw.Flush()
}

func encode(w io.Writer, v any, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
