package springview

import (
	"html/template"
	"io"
	"strings"
	"testing"
)

const benchSource = `
<html>
<head><title>{=strtoupper($title)}</title></head>
<body>
  <ul>
  {@($items)}
    <li>{=@.name} - {=@.price}</li>
  {/@}
  </ul>
  {?($user.admin)}<div class="admin">Hi, {=$user.name}</div>{?!}<div>Welcome!</div>{/?}
</body>
</html>`

var benchData = map[string]any{
	"title": "Products",
	"user":  map[string]any{"name": "Orgware", "admin": true},
	"items": []map[string]any{{"name": "Alpha", "price": 100}, {"name": "Beta", "price": 120}},
}

func BenchmarkRender(b *testing.B) {
	e := testEngine(b, map[string]string{"bench": benchSource})
	if _, err := e.Render("bench", benchData); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Display(io.Discard, "bench", benchData)
	}
}

func BenchmarkCompile(b *testing.B) {
	e := testEngine(b, map[string]string{"bench": benchSource})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c := newCompiler(e, e.exprs, "bench", nil)
		if _, err := c.compile(benchSource); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHTMLTemplate(b *testing.B) {
	htmlTpl := template.Must(template.New("test").Funcs(template.FuncMap{
		"upper": strings.ToUpper,
	}).Parse(`
<html>
<head><title>{{.Title | upper}}</title></head>
<body>
  <ul>
  {{range .Items}}
    <li>{{.Name}} - {{.Price}}</li>
  {{end}}
  </ul>
  {{if .User.Admin}}<div class="admin">Hi, {{.User.Name}}</div>{{else}}<div>Welcome!</div>{{end}}
</body>
</html>`))

	type item struct {
		Name  string
		Price int
	}
	data := struct {
		Title string
		User  struct {
			Name  string
			Admin bool
		}
		Items []item
	}{Title: "Products", Items: []item{{"Alpha", 100}, {"Beta", 120}}}
	data.User.Name, data.User.Admin = "Orgware", true

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = htmlTpl.Execute(io.Discard, data)
	}
}
