package http

import (
	"bytes"
	"errors"
	"net/http"

	"deals/internal/auth"
	"deals/internal/core"
	"deals/internal/report"
)

func (s *Server) handleReportForm(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	s.renderReport(w, r, p, http.StatusOK, core.ReportForm{}, nil, nil)
}

// handleReport builds the report for the submitted filter and renders it,
// or streams a download when one of the export_* flags is present.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	ctx := r.Context()
	var form core.ReportForm
	if err := ParseForm(w, r, &form); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "The submitted form could not be read.")
		return
	}
	filter, err := form.Filter()
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		s.renderReport(w, r, p, http.StatusUnprocessableEntity, form, nil, ve.Fields)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	rep, err := s.reports.Generate(ctx, filter)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	if f, ok := exportFormat(r); ok {
		var buf bytes.Buffer
		if err := s.reports.Export(ctx, &buf, f, rep); err != nil {
			s.serverError(w, r, err)
			return
		}
		NewResponse().Attachment(f.Filename(), f.ContentType(), &buf).Write(w)
		return
	}

	s.renderReport(w, r, p, http.StatusOK, form, &rep, nil)
}

// exportFormat returns the format whose flag was posted, if any.
func exportFormat(r *http.Request) (report.Format, bool) {
	for _, f := range report.Formats {
		if _, ok := r.PostForm[f.FormFlag()]; ok {
			return f, true
		}
	}
	return "", false
}

func (s *Server) renderReport(w http.ResponseWriter, r *http.Request, p auth.Principal, status int, form core.ReportForm, rep *report.Report, errs map[string]string) {
	managers, err := s.deals.ListManagers(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, status, "report", viewData{
		Title:      "Report",
		Principal:  p,
		ReportForm: form,
		Errors:     errs,
		Managers:   managers,
		Report:     rep,
		Products:   core.Products,
		Formats:    report.Formats,
	})
}
