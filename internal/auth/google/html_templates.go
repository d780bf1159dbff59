package google

import (
	"html"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// authSuccessHTML is the page shown in the browser after a successful
// authorization round trip.
const authSuccessHTML = `<!DOCTYPE html>
<html>
<head><title>Authentication Complete</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
       display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0;
       background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; }
.container { text-align: center; padding: 40px; }
h1 { margin-bottom: 10px; }
p { opacity: 0.9; }
</style>
</head>
<body>
<div class="container">
<h1>&#10003; Authentication Successful</h1>
<p>You can close this window and return to Mokuro Reader.</p>
</div>
</body>
</html>`

// authFailureHTML is the page shown when a flow fails. The error placeholder
// is replaced with the HTML-escaped failure message.
const authFailureHTML = `<!DOCTYPE html>
<html>
<head><title>Authentication Failed</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
       display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0;
       background: linear-gradient(135deg, #f093fb 0%, #f5576c 100%); color: white; }
.container { text-align: center; padding: 40px; }
h1 { margin-bottom: 10px; }
p { opacity: 0.9; }
</style>
</head>
<body>
<div class="container">
<h1>&#10007; Authentication Failed</h1>
<p>{{ERROR_MESSAGE}}</p>
<p>Please close this window and try again.</p>
</div>
</body>
</html>`

// writeSuccessPage renders the static success page with an explicit
// Content-Length. The listener never keeps connections alive, so the
// response is the last thing written on this connection.
func writeSuccessPage(w http.ResponseWriter) {
	writePage(w, http.StatusOK, authSuccessHTML)
}

// writeFailurePage renders the failure page with the message embedded.
// Interpolated values are HTML-escaped so provider-supplied error text
// cannot inject markup into the local page.
func writeFailurePage(w http.ResponseWriter, message string) {
	page := strings.Replace(authFailureHTML, "{{ERROR_MESSAGE}}", html.EscapeString(message), 1)
	writePage(w, http.StatusBadRequest, page)
}

func writePage(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		log.Errorf("failed to write callback page: %v", err)
	}
}
