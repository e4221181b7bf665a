package api

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/infra/i18n"
)

const pageStyle = `<style>
body{font-family:system-ui,Arial,sans-serif;margin:0;background:#f4f4f4;}
header{background:#333;color:#fff;padding:1rem 0;text-align:center;margin-bottom:2rem;}
h1{margin:0;font-size:2.2rem;}
.columns{display:flex;flex-wrap:wrap;gap:1.5rem;justify-content:center;width:95%;margin:0 auto;}
.column{background:#fff;padding:1rem;box-shadow:0 0 10px rgba(0,0,0,.1);flex:1;min-width:280px;}
.column h2{margin-top:0;border-bottom:2px solid #eee;padding-bottom:.5rem;}
article{border-bottom:1px solid #eee;padding-bottom:1rem;margin-bottom:1rem;}
article:last-child{border-bottom:none;}
article h3{margin:0 0 .5rem;font-size:1.05rem;color:#444;}
article p{color:#555;line-height:1.5;font-size:.9rem;}
.meta{font-size:.75rem;color:#777;}
.card{max-width:560px;margin:3rem auto;background:#fff;border:1px solid #ddd;border-radius:12px;padding:24px;text-align:center;}
.ok{color:#057a55} .warn{color:#b26a00} .fail{color:#b00020}
.token{background:#f0f0f0;padding:16px;border-radius:6px;font-family:monospace;word-break:break-all;}
.small{font-size:12px;color:#666}
</style>`

// pages are the browser templates, parsed once per server with its page text.
type pages struct {
	news   *template.Template
	result *template.Template
}

func newPages(text *i18n.Translator) *pages {
	funcs := template.FuncMap{
		"t": text.T,
		"title": func(s string) string {
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
		"stamp": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
	}
	return &pages{
		news:   template.Must(template.New("news").Funcs(funcs).Parse(newsHTML)),
		result: template.Must(template.New("result").Funcs(funcs).Parse(resultHTML)),
	}
}

const newsHTML = `<!doctype html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>{{t "page.news_title"}}</title>
` + pageStyle + `
</head>
<body>
<header><h1>{{t "page.news_title"}}</h1></header>
<div class="columns">
{{range .Groups}}
  <div class="column">
    <h2>{{title .Category}}</h2>
    {{range .Items}}
    <article>
      <h3>{{.Title}}</h3>
      <p>{{.Description}}</p>
      <div class="meta">{{stamp .Timestamp}}</div>
    </article>
    {{end}}
  </div>
{{end}}
</div>
</body>
</html>`

const resultHTML = `<!doctype html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>{{.Title}}</title>
` + pageStyle + `
</head>
<body>
<div class="card">
  <h2 class="{{.Class}}">{{.Title}}</h2>
  <p>{{.Msg}}</p>
  {{if .Token}}
    <p>{{t "page.token_hint"}}</p>
    <div class="token">{{.Token}}</div>
    <p class="small">{{t "page.scope"}}: {{.Scope}}{{if .ExpiresAt}} &middot; {{t "page.valid_until" .ExpiresAt}}{{else}} &middot; {{t "page.single_use"}}{{end}}</p>
  {{end}}
  {{if .SessionID}}<p class="small">{{t "page.session" .SessionID}}</p>{{end}}
</div>
</body>
</html>`

type newsView struct {
	Lang   string
	Groups []newsGroup
}

type newsGroup struct {
	Category string
	Items    []model.NewsItem
}

type resultView struct {
	Lang      string
	Title     string
	Class     string
	Msg       string
	SessionID string
	Token     string
	Scope     string
	ExpiresAt string
}

// groupNews keeps the catalog's category order; items are already newest first.
func groupNews(categories []string, items []model.NewsItem) []newsGroup {
	byCat := make(map[string][]model.NewsItem, len(categories))
	for _, it := range items {
		byCat[it.Category] = append(byCat[it.Category], it)
	}
	out := make([]newsGroup, 0, len(categories))
	for _, c := range categories {
		if len(byCat[c]) > 0 {
			out = append(out, newsGroup{Category: c, Items: byCat[c]})
		}
	}
	return out
}

func renderHTML(w http.ResponseWriter, code int, tpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_ = tpl.Execute(w, data)
}
