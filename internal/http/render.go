package http

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"deals/internal/auth"
	"deals/internal/core"
	"deals/internal/log"
	"deals/internal/report"
)

var pageNames = []string{
	"login",
	"deal_list",
	"deal_form",
	"deal_confirm_delete",
	"report",
	"managers",
	"error",
}

var templateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"ratio": func(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) },
	"idstr": func(id int64) string { return strconv.FormatInt(id, 10) },
}

// viewData is the single model every page template renders from.
type viewData struct {
	Title     string
	Principal auth.Principal
	Message   string

	Query string
	Deals []core.Deal
	Deal  core.Deal

	DealForm    core.DealForm
	ReportForm  core.ReportForm
	ManagerForm core.ManagerForm
	LoginForm   core.LoginForm
	Errors      map[string]string

	Managers []core.Manager
	Report   *report.Report
	Products []core.Product
	Formats  []report.Format
}

// parsePages pairs every page with the shared layout.
func parsePages(fsys fs.FS) (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(templateFuncs).
			ParseFS(fsys, "templates/_layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		pages[name] = t
	}
	return pages, nil
}

// render executes page into a buffer first so a template error never
// leaves a half-written 200 behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data viewData) {
	t, ok := s.pages[page]
	if !ok {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Unknown template", "template", page)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed", "template", page, log.Err(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	NewResponse().Status(status).HTML(buf.Bytes()).Write(w)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.render(w, r, status, "error", viewData{Title: http.StatusText(status), Message: message})
}
