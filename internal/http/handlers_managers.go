package http

import (
	"errors"
	"net/http"

	"deals/internal/auth"
	"deals/internal/core"
)

func (s *Server) handleManagerList(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	s.renderManagers(w, r, p, http.StatusOK, core.ManagerForm{}, nil)
}

func (s *Server) handleManagerCreate(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var form core.ManagerForm
	if err := ParseForm(w, r, &form); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "The submitted form could not be read.")
		return
	}
	_, err := s.deals.CreateManager(r.Context(), p.Username, form)
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		s.renderManagers(w, r, p, http.StatusUnprocessableEntity, form, ve.Fields)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/managers", http.StatusSeeOther)
}

func (s *Server) renderManagers(w http.ResponseWriter, r *http.Request, p auth.Principal, status int, form core.ManagerForm, errs map[string]string) {
	managers, err := s.deals.ListManagers(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, status, "managers", viewData{
		Title:       "Managers",
		Principal:   p,
		ManagerForm: form,
		Errors:      errs,
		Managers:    managers,
	})
}
