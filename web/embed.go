// Package web embeds the static dev dashboard served by the fixture server.
package web

import "embed"

// Assets contains the dashboard page. It is plain HTML and JS so the
// dev server needs no frontend build step.
//
//go:embed static
var Assets embed.FS
