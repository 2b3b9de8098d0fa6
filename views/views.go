// Package views embeds the html templates served by the report web view.
package views

import "embed"

//go:embed *.html
var FS embed.FS
