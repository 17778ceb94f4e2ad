package report

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datalytyx/databricks-maintenance/pkg/libraries"
	"github.com/datalytyx/databricks-maintenance/pkg/maintenance"
)

// DefaultTitle is the heading of generated HTML reports.
const DefaultTitle = "Databricks Maintenance Report"

// LibrarySection is the library table of one cluster.
type LibrarySection struct {
	ClusterID   string
	ClusterName string
	Findings    []libraries.Finding
	Error       string
}

// Document is the data rendered into an HTML report.
type Document struct {
	Title       string
	RunID       string
	Workspace   string
	GeneratedAt time.Time
	Runtimes    []RuntimeRow
	Libraries   []LibrarySection
}

// NewDocument builds a report document from the results of a maintenance run.
func NewDocument(workspace string, res *maintenance.Results, generatedAt time.Time) *Document {
	doc := &Document{
		Title:       DefaultTitle,
		RunID:       uuid.NewString(),
		Workspace:   workspace,
		GeneratedAt: generatedAt,
		Runtimes:    RuntimeRows(res.Statuses, res.Recommendations),
	}
	for _, cl := range res.Libraries {
		section := LibrarySection{
			ClusterID:   cl.ClusterID,
			ClusterName: cl.ClusterName,
			Findings:    cl.Findings,
		}
		if section.ClusterName == "" {
			section.ClusterName = UnknownCluster
		}
		if cl.Err != nil {
			section.Error = cl.Err.Error()
		}
		doc.Libraries = append(doc.Libraries, section)
	}
	return doc
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
	"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; margin: 20px; }
    h1, h2, h3 { color: #0077b6; }
    table { border-collapse: collapse; width: 100%; margin-bottom: 20px; }
    th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
    th { background-color: #f2f2f2; }
    tr:nth-child(even) { background-color: #f9f9f9; }
    .high, .DEPRECATED { background-color: #ffcccc; }
    .medium, .SOON_DEPRECATED { background-color: #fff2cc; }
    .low { background-color: #e6f3ff; }
    .error { color: #b00020; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p>Generated on {{stamp .GeneratedAt}}{{with .Workspace}} for workspace <strong>{{.}}</strong>{{end}} (run {{.RunID}})</p>

  <h2>Runtime Version Status</h2>
  <p>Found {{len .Runtimes}} clusters with deprecated or soon-to-be deprecated runtimes.</p>
  {{- if .Runtimes}}
  <table>
    <tr><th>Cluster Name</th><th>Current Runtime</th><th>Status</th><th>Deprecation Date</th><th>Recommended Runtime</th><th>Rationale</th></tr>
    {{- range .Runtimes}}
    <tr class="{{.Status}}"><td>{{.ClusterName}}</td><td>{{.CurrentRuntime}}</td><td>{{.Status}}</td><td>{{.DeprecationDate}}</td><td>{{.RecommendedRuntime}}</td><td>{{.Rationale}}</td></tr>
    {{- end}}
  </table>
  {{- end}}

  <h2>Library Status</h2>
  {{- range .Libraries}}
  <h3>Cluster: {{.ClusterName}}</h3>
  {{- if .Error}}
  <p class="error">Library check failed: {{.Error}}</p>
  {{- else}}
  <p>Found {{len .Findings}} libraries that need attention.</p>
  {{- if .Findings}}
  <table>
    <tr><th>Library</th><th>Current Version</th><th>Recommended Version</th><th>Reason</th><th>Severity</th></tr>
    {{- range .Findings}}
    <tr class="{{.Severity}}"><td>{{.LibraryName}}</td><td>{{.CurrentVersion}}</td><td>{{.RecommendedVersion}}</td><td>{{.Reason}}</td><td>{{upper (printf "%s" .Severity)}}</td></tr>
    {{- end}}
  </table>
  {{- else}}
  <p>No issues found with libraries on this cluster.</p>
  {{- end}}
  {{- end}}
  {{- else}}
  <p>No clusters were checked for library issues.</p>
  {{- end}}
</body>
</html>
`))

// WriteHTML renders doc as a standalone HTML page.
func WriteHTML(w io.Writer, doc *Document) error {
	if err := htmlTemplate.Execute(w, doc); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}
