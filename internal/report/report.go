// Package report summarises the attempt audit log: how often each strategy
// and endpoint got results, and what blocked it when it did not.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"net/url"
	"text/template"
	"time"

	"github.com/FranksOps/sift/internal/storage"
)

// Tally counts outcomes for one strategy or endpoint.
type Tally struct {
	Attempts    int           `json:"attempts"`
	Successes   int           `json:"successes"`
	Blocks      int           `json:"blocks"`
	Errors      int           `json:"errors"`
	Results     int           `json:"results"`
	AvgDuration time.Duration `json:"avg_duration"`

	total time.Duration
}

// SuccessRate is the share of attempts that produced results.
func (t Tally) SuccessRate() float64 {
	if t.Attempts == 0 {
		return 0
	}
	return float64(t.Successes) / float64(t.Attempts)
}

func (t *Tally) add(a *storage.Attempt) {
	t.Attempts++
	switch {
	case a.Succeeded():
		t.Successes++
	case a.Blocked():
		t.Blocks++
	case a.Error != "":
		t.Errors++
	}
	t.Results += a.ResultCount
	t.total += a.Duration
	t.AvgDuration = t.total / time.Duration(t.Attempts)
}

// Summary contains aggregated metrics about a set of attempts.
type Summary struct {
	Tally
	Queries     int              `json:"queries"`
	StatusCodes map[int]int      `json:"status_codes"`
	BlocksBySrc map[string]int   `json:"blocks_by_source"`
	ByStrategy  map[string]Tally `json:"by_strategy"`
	ByEndpoint  map[string]Tally `json:"by_endpoint"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Duration    time.Duration    `json:"duration"`
}

// GenerateSummary aggregates attempts.
func GenerateSummary(attempts []*storage.Attempt) Summary {
	s := Summary{
		StatusCodes: make(map[int]int),
		BlocksBySrc: make(map[string]int),
		ByStrategy:  make(map[string]Tally),
		ByEndpoint:  make(map[string]Tally),
	}

	if len(attempts) == 0 {
		return s
	}

	s.StartTime = attempts[0].CreatedAt
	s.EndTime = attempts[0].CreatedAt
	queries := make(map[string]struct{})

	for _, a := range attempts {
		s.Tally.add(a)
		queries[a.Query] = struct{}{}

		if a.Blocked() {
			src := a.DetectionSrc
			if src == "" {
				src = "unknown"
			}
			s.BlocksBySrc[src]++
		}
		if a.StatusCode > 0 {
			s.StatusCodes[a.StatusCode]++
		}

		st := s.ByStrategy[a.Strategy]
		st.add(a)
		s.ByStrategy[a.Strategy] = st

		host := endpointHost(a.Endpoint)
		et := s.ByEndpoint[host]
		et.add(a)
		s.ByEndpoint[host] = et

		if a.CreatedAt.Before(s.StartTime) {
			s.StartTime = a.CreatedAt
		}
		if a.CreatedAt.After(s.EndTime) {
			s.EndTime = a.CreatedAt
		}
	}

	s.Queries = len(queries)
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// endpointHost reduces an endpoint URL to host and path, dropping the query.
func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host + u.Path
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

var funcs = map[string]any{
	"pct": func(t Tally) string { return fmt.Sprintf("%.1f%%", t.SuccessRate()*100) },
}

const textTmpl = `Sift Audit Summary
------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Queries:       {{.Queries}}
Attempts:      {{.Attempts}} ({{.Successes}} succeeded, {{.Blocks}} blocked, {{.Errors}} failed, {{pct .Tally}} success)
Results:       {{.Results}}

By Strategy:
{{- range $name, $t := .ByStrategy}}
  {{$name}}: {{$t.Attempts}} attempts, {{$t.Successes}} ok, {{$t.Blocks}} blocked, {{$t.Errors}} failed, {{pct $t}}, avg {{$t.AvgDuration}}
{{- else}}
  None
{{- end}}

By Endpoint:
{{- range $host, $t := .ByEndpoint}}
  {{$host}}: {{$t.Attempts}} attempts, {{$t.Blocks}} blocked, {{pct $t}}
{{- else}}
  None
{{- end}}

Status Codes:
{{- range $code, $count := .StatusCodes}}
  {{$code}}: {{$count}}
{{- else}}
  None
{{- end}}

Blocks: {{.Blocks}}
{{- range $src, $count := .BlocksBySrc}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := template.New("textReport").Funcs(funcs).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Sift Audit Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  .blocked { color: red; }
  .clear { color: green; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Sift Audit Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Queries</div>
    <div class="stat-val">{{.Queries}}</div>
  </div>
  <div class="stat-card">
    <div>Attempts</div>
    <div class="stat-val">{{.Attempts}}</div>
  </div>
  <div class="stat-card">
    <div>Success Rate</div>
    <div class="stat-val">{{pct .Tally}}</div>
  </div>
  <div class="stat-card">
    <div>Blocks</div>
    <div class="stat-val {{if gt .Blocks 0}}blocked{{else}}clear{{end}}">{{.Blocks}}</div>
  </div>

  <h3>By Strategy</h3>
  <table>
    <tr><th>Strategy</th><th>Attempts</th><th>Succeeded</th><th>Blocked</th><th>Failed</th><th>Success</th><th>Avg Duration</th></tr>
    {{- range $name, $t := .ByStrategy}}
    <tr><td>{{$name}}</td><td>{{$t.Attempts}}</td><td>{{$t.Successes}}</td><td>{{$t.Blocks}}</td><td>{{$t.Errors}}</td><td>{{pct $t}}</td><td>{{$t.AvgDuration}}</td></tr>
    {{- else}}
    <tr><td colspan="7">None</td></tr>
    {{- end}}
  </table>

  <h3>By Endpoint</h3>
  <table>
    <tr><th>Endpoint</th><th>Attempts</th><th>Blocked</th><th>Success</th></tr>
    {{- range $host, $t := .ByEndpoint}}
    <tr><td>{{$host}}</td><td>{{$t.Attempts}}</td><td>{{$t.Blocks}}</td><td>{{pct $t}}</td></tr>
    {{- else}}
    <tr><td colspan="4">None</td></tr>
    {{- end}}
  </table>

  <h3>Status Codes</h3>
  <table>
    <tr><th>Code</th><th>Count</th></tr>
    {{- range $code, $count := .StatusCodes}}
    <tr><td>{{$code}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Blocks By Source</h3>
  <table>
    <tr><th>Source</th><th>Count</th></tr>
    {{- range $src, $count := .BlocksBySrc}}
    <tr><td>{{$src}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes an HTML report to the provided writer. Endpoint and
// query text is escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := htmltemplate.New("htmlReport").Funcs(funcs).Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: parse html template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

// Write renders summary in format: "text", "json" or "html".
func Write(w io.Writer, format string, summary Summary) error {
	switch format {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "html":
		return WriteHTML(w, summary)
	}
	return fmt.Errorf("report: unknown format %q", format)
}
