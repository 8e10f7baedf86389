package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"deals/internal/core"
)

// maxFormBytes bounds a submitted form body.
const maxFormBytes = 1 << 20

// ParseForm reads the request body (or query for GET) and binds it into dst.
func ParseForm(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parse form: %w", err)
	}
	return BindForm(r.Form, dst)
}

// BindForm copies values into the string and []string fields of the struct
// dst points to, matching the field's `form` tag. Control characters are
// stripped and surrounding whitespace trimmed.
func BindForm(values url.Values, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return errors.New("bind form: destination must be a pointer to a struct")
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := range rt.NumField() {
		sf := rt.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get("form"), ",")
		if name == "" || name == "-" || !sf.IsExported() {
			continue
		}
		fv := rv.Field(i)
		switch {
		case fv.Kind() == reflect.String:
			fv.SetString(sanitizeInput(values.Get(name)))
		case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.String:
			raw := values[name]
			out := make([]string, 0, len(raw))
			for _, v := range raw {
				if v = sanitizeInput(v); v != "" {
					out = append(out, v)
				}
			}
			fv.Set(reflect.ValueOf(out))
		default:
			return fmt.Errorf("bind form: unsupported field %s of kind %s", sf.Name, fv.Kind())
		}
	}
	return nil
}

// sanitizeInput removes control characters other than tab and newlines and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(stripControl(s))
}

// searchQuery reads the listing's q parameter. Whitespace is part of the
// substring being searched, so it is kept.
func searchQuery(r *http.Request) string {
	return stripControl(r.URL.Query().Get("q"))
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// dealID reads the {id} path parameter. Malformed ids are reported as
// ErrNotFound since no deal can carry them.
func dealID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.ErrNotFound
	}
	return id, nil
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	if u, err := url.Parse(next); err != nil || u.Host != "" || u.Scheme != "" {
		return "/"
	}
	return next
}
