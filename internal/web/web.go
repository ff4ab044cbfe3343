// Package web holds the static player page.
package web

import _ "embed"

//go:embed index.html
var IndexHTML []byte
