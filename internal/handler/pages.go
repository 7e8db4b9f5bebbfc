package handler

import "html/template"

const pageLayout = `
{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;max-width:40rem;margin:2rem auto;padding:0 1rem;color:#222}
.error{color:#a00}
.done{text-decoration:line-through;color:#777}
li{margin:.4rem 0}
form.inline{display:inline}
</style>
</head>
<body>{{end}}

{{define "foot"}}</body>
</html>{{end}}

{{define "result.html"}}{{template "head" .}}
<h1>{{.Title}}</h1>
<p{{if .Error}} class="error"{{end}}>{{.Message}}</p>
{{template "foot" .}}{{end}}

{{define "reschedule.html"}}{{template "head" .}}
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/a/{{.Token}}">
<input type="date" name="date" value="{{.Suggested}}" min="{{.Today}}" required>
<button type="submit">Reschedule</button>
</form>
{{template "foot" .}}{{end}}

{{define "inbox.html"}}{{template "head" .}}
<h1>{{.Title}}</h1>
<p>Meetings sent to {{.Email}}</p>
{{range .Meetings}}
<h2>{{.Title}} <small>{{.Date}}</small></h2>
{{if .Items}}<ul>
{{range .Items}}<li>
<span{{if .Done}} class="done"{{end}}>{{.Line}}</span>
<form class="inline" method="post" action="{{.ToggleURL}}">
<button type="submit">{{if .Done}}Reopen{{else}}Done{{end}}</button>
</form>
</li>{{end}}
</ul>{{else}}<p>No commitments found.</p>{{end}}
{{else}}<p>No meetings yet.</p>{{end}}
{{template "foot" .}}{{end}}
`

// Templates returns the HTML pages served for email links
func Templates() *template.Template {
	return template.Must(template.New("pages").Parse(pageLayout))
}
