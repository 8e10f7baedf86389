// Package web embeds the page templates and static assets served by the
// deals web server.
package web

import "embed"

// TemplatesFS holds the shared layout and one file per page.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

//go:embed static/*
var StaticFS embed.FS
