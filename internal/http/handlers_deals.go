package http

import (
	"errors"
	"net/http"

	"deals/internal/auth"
	"deals/internal/core"
	"deals/internal/log"
)

func (s *Server) handleDealList(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	q := searchQuery(r)
	deals, err := s.deals.ListDeals(r.Context(), q)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "deal_list", viewData{
		Title:     "Deals",
		Principal: p,
		Query:     q,
		Deals:     deals,
	})
}

func (s *Server) handleDealNew(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	s.renderDealForm(w, r, p, http.StatusOK, core.Deal{}, core.DealForm{}, nil)
}

func (s *Server) handleDealCreate(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var form core.DealForm
	if err := ParseForm(w, r, &form); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "The submitted form could not be read.")
		return
	}
	d, err := s.deals.CreateDeal(r.Context(), p.Username, form)
	if s.handleFormError(w, r, p, core.Deal{}, form, err) {
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Deal created",
		log.NewFields().WithDeal(d.ID, d.StockNumber).WithUser(p.Username).ToSlice()...)
	http.Redirect(w, r, "/deals", http.StatusSeeOther)
}

func (s *Server) handleDealEdit(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	d, ok := s.loadDeal(w, r)
	if !ok {
		return
	}
	s.renderDealForm(w, r, p, http.StatusOK, d, core.NewDealForm(d), nil)
}

func (s *Server) handleDealUpdate(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := dealID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var form core.DealForm
	if err := ParseForm(w, r, &form); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "The submitted form could not be read.")
		return
	}
	d, err := s.deals.UpdateDeal(r.Context(), p.Username, id, form)
	if s.handleFormError(w, r, p, core.Deal{ID: id}, form, err) {
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Deal updated",
		log.NewFields().WithDeal(d.ID, d.StockNumber).WithUser(p.Username).ToSlice()...)
	http.Redirect(w, r, "/deals", http.StatusSeeOther)
}

func (s *Server) handleDealConfirmDelete(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	d, ok := s.loadDeal(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "deal_confirm_delete", viewData{
		Title:     "Delete deal",
		Principal: p,
		Deal:      d,
	})
}

func (s *Server) handleDealDelete(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := dealID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deals.DeleteDeal(r.Context(), p.Username, id); err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/deals", http.StatusSeeOther)
}

func (s *Server) loadDeal(w http.ResponseWriter, r *http.Request) (core.Deal, bool) {
	id, err := dealID(r)
	if err != nil {
		s.fail(w, r, err)
		return core.Deal{}, false
	}
	d, err := s.deals.GetDeal(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return core.Deal{}, false
	}
	return d, true
}

// handleFormError re-renders the form with field messages on a validation
// error and reports whether err was handled.
func (s *Server) handleFormError(w http.ResponseWriter, r *http.Request, p auth.Principal, d core.Deal, form core.DealForm, err error) bool {
	if err == nil {
		return false
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		s.renderDealForm(w, r, p, http.StatusUnprocessableEntity, d, form, ve.Fields)
		return true
	}
	s.fail(w, r, err)
	return true
}

func (s *Server) renderDealForm(w http.ResponseWriter, r *http.Request, p auth.Principal, status int, d core.Deal, form core.DealForm, errs map[string]string) {
	managers, err := s.deals.ListManagers(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	title := "New deal"
	if d.ID != 0 {
		title = "Edit deal"
	}
	s.render(w, r, status, "deal_form", viewData{
		Title:     title,
		Principal: p,
		Deal:      d,
		DealForm:  form,
		Errors:    errs,
		Managers:  managers,
		Products:  core.Products,
	})
}

// fail maps a request-boundary error to its page.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		if isAPI(r) {
			JSONError(http.StatusNotFound, "not found").Write(w)
			return
		}
		s.renderError(w, r, http.StatusNotFound, "No deal found matching the query.")
	case errors.Is(err, core.ErrUnauthorized):
		if isAPI(r) {
			JSONError(http.StatusUnauthorized, "authentication required").Write(w)
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	default:
		s.serverError(w, r, err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", log.Err(err), log.FieldPath, r.URL.Path)
	if isAPI(r) {
		JSONError(http.StatusInternalServerError, "internal server error").Write(w)
		return
	}
	s.renderError(w, r, http.StatusInternalServerError, "Something went wrong. Please try again.")
}
