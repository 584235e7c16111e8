package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = []string{
	"index", "quote", "quoted", "buy", "sell", "login",
	"register", "history", "changepassword", "apology",
}

// usd formats a decimal dollar amount for display, e.g. 1234.5 -> $1,234.50.
func usd(d decimal.Decimal) string {
	minor := d.Round(2).Shift(2).IntPart()
	return money.New(minor, money.USD).Display()
}

type Renderer struct {
	templates map[string]*template.Template
}

func NewRenderer() *Renderer {
	funcMap := template.FuncMap{
		"usd": usd,
	}

	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.New("layout.html").
			Funcs(funcMap).
			ParseFS(templatesFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			slog.Error("can't parse template", slog.String("page", page), slog.String("err", err.Error()))
			panic(err)
		}
		templates[page] = t
	}

	return &Renderer{templates: templates}
}

func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data any) {
	t, ok := r.templates[page]
	if !ok {
		slog.Error("unknown template page", slog.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout.html", data); err != nil {
		slog.Error("can't execute template", slog.String("page", page), slog.String("err", err.Error()))
	}
}
