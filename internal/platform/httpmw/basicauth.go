package httpmw

import "net/http"

// BasicAuth extracts HTTP Basic credentials, requiring both username and
// password to be non-empty per spec.md §4.5 step 1.
func BasicAuth(r *http.Request) (username, password string, ok bool) {
	username, password, ok = r.BasicAuth()
	if !ok || username == "" || password == "" {
		return "", "", false
	}
	return username, password, true
}
