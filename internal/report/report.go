// Package report collects the daily N2YO sections and renders them as HTML mail.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"time"

	"golang.org/x/sync/errgroup"

	"satrunner/internal/n2yo"
)

// Params are the report knobs. Zero values are filled from Defaults.
type Params struct {
	SatID           int
	Observer        n2yo.Observer
	PositionSeconds int
	PassDays        int
	MinVisibility   int // seconds
	MinElevation    int // degrees
	SearchRadius    int // degrees
	Category        int // 0 = all
}

func Defaults() Params {
	return Params{
		SatID:           n2yo.ISSNoradID,
		Observer:        n2yo.Observer{Lat: 40.7128, Lng: -74.0060, Alt: 10},
		PositionSeconds: 3,
		PassDays:        2,
		MinVisibility:   300,
		MinElevation:    40,
		SearchRadius:    70,
		Category:        0,
	}
}

// Request is one titled section to fetch.
type Request struct {
	Title string
	Fetch func(ctx context.Context) n2yo.Response
}

type Section struct {
	Title    string
	Response n2yo.Response
}

// Plan lists the sections of the daily report, in display order.
func Plan(c *n2yo.Client, p Params) []Request {
	return []Request{
		{"TLE Data (ISS)", func(ctx context.Context) n2yo.Response { return c.TLE(ctx, p.SatID) }},
		{"Positions Data (ISS)", func(ctx context.Context) n2yo.Response {
			return c.Positions(ctx, p.SatID, p.Observer, p.PositionSeconds)
		}},
		{"Visual Passes (ISS)", func(ctx context.Context) n2yo.Response {
			return c.VisualPasses(ctx, p.SatID, p.Observer, p.PassDays, p.MinVisibility)
		}},
		{"Radio Passes (ISS)", func(ctx context.Context) n2yo.Response {
			return c.RadioPasses(ctx, p.SatID, p.Observer, p.PassDays, p.MinElevation)
		}},
		{"What's Up", func(ctx context.Context) n2yo.Response {
			return c.Above(ctx, p.Observer, p.SearchRadius, p.Category)
		}},
	}
}

// Collect fetches every request with at most limit in flight. Sections come
// back in request order; a failed fetch is a section with an error, never a
// Collect error.
func Collect(ctx context.Context, reqs []Request, limit int) []Section {
	out := make([]Section, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, r := range reqs {
		g.Go(func() error {
			out[i] = Section{Title: r.Title, Response: r.Fetch(gctx)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func Subject(now time.Time) string {
	return "N2YO Daily Satellite Report - " + now.UTC().Format("2006-01-02")
}

// Failed counts sections that carry an error.
func Failed(sections []Section) int {
	n := 0
	for _, s := range sections {
		if !s.Response.OK() {
			n++
		}
	}
	return n
}

var page = template.Must(template.New("report").Parse(`<html><head><style>
body {font-family: sans-serif; margin: 20px;}
h1 {color: #333;}
h2 {color: #555; border-bottom: 1px solid #eee; padding-bottom: 5px;}
pre {background-color: #f4f4f4; padding: 10px; border-radius: 5px; overflow-x: auto;}
.error {color: red; font-weight: bold;}
</style></head><body>
<h1>N2YO API Daily Report - {{.Generated}}</h1>
{{range .Sections}}<h2>{{.Title}}</h2>
{{if .Error}}<p class="error">Error fetching data: {{.Error}}</p>
{{if .URL}}<p>URL: {{.URL}}</p>
{{end}}{{if .Content}}<p>Content:</p><pre>{{.Content}}</pre>
{{end}}{{else if .Pretty}}<pre>{{.Pretty}}</pre>
{{else}}<p>No data received or an unknown error occurred.</p>
{{end}}{{end}}</body></html>
`))

type viewSection struct {
	Title   string
	Error   string
	URL     string
	Content string
	Pretty  string
}

// RenderHTML renders the report body. Payloads are pretty-printed JSON and
// HTML-escaped.
func RenderHTML(now time.Time, sections []Section) (string, error) {
	view := struct {
		Generated string
		Sections  []viewSection
	}{Generated: now.UTC().Format("2006-01-02 15:04:05 UTC")}

	for _, s := range sections {
		v := viewSection{Title: s.Title}
		if !s.Response.OK() {
			v.Error, v.URL, v.Content = s.Response.Error, s.Response.URL, s.Response.Content
		} else if len(s.Response.Data) > 0 {
			v.Pretty = prettyJSON(s.Response.Data)
		}
		view.Sections = append(view.Sections, v)
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	s := buf.String()
	if s == "null" || s == "{}" || s == "[]" {
		return ""
	}
	return s
}
