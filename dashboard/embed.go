// Package dashboard holds the embedded web page served at "/".
//
// The page lets a viewer pick event kinds to watch and shows the most
// recent repository and actor avatar seen for each. It seeds itself from
// /api/latest and then follows /api/events.
package dashboard

import "embed"

// Assets contains assets/index.html. The server replaces the {{.Source}}
// placeholder in it with the HTML-escaped feed URL.
//
//go:embed assets/*
var Assets embed.FS
