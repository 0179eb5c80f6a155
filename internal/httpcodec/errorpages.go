package httpcodec

import (
	"fmt"
	"html"
)

// NotFoundBody renders the default 404 page, mentioning the HTML-escaped
// request URI so a handler that didn't supply its own body still produces
// something reasonable.
func NotFoundBody(uri string) string {
	escaped := html.EscapeString(uri)
	return fmt.Sprintf(
		"<html><head><title>404 Not Found</title></head>"+
			"<body><h1>Not Found</h1><p>The requested URL %s was not found on this server.</p></body></html>",
		escaped,
	)
}

// GenericErrorBody renders a minimal page for any other non-2xx status the
// server returns without an explicit body.
func GenericErrorBody(code int, reason string) string {
	escaped := html.EscapeString(reason)
	return fmt.Sprintf(
		"<html><head><title>%d %s</title></head><body><h1>%d %s</h1></body></html>",
		code, escaped, code, escaped,
	)
}
