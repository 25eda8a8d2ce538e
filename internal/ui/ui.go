// Package ui carries the embedded viewer frontend.
package ui

import "embed"

//go:embed all:dist
var DistFS embed.FS
