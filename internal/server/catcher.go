package server

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/desertthunder/soundcheck/internal/session"
)

// CatchResult is what the loopback page resolved on its first redirected load.
type CatchResult struct {
	Bootstrap *session.BootstrapResult
	err       error
}

func (c *CatchResult) Error() error {
	return c.err
}

// Catcher stands in for the frontend root on the loopback address.
//
// Each page load runs [session.Bootstrap] against the requested location and answers with a page
// that rewrites the address bar to the stripped location. The first load that carried tokens is
// delivered through [Catcher.Result].
type Catcher struct {
	session    *session.Session
	origin     string
	resultChan chan CatchResult
	once       sync.Once
}

// NewCatcher creates a catcher for frontendURL, whose scheme and host are used to rebuild the
// full location of each request.
func NewCatcher(s *session.Session, frontendURL string) (*Catcher, error) {
	u, err := url.Parse(frontendURL)
	if err != nil {
		return nil, err
	}
	return &Catcher{
		session:    s,
		origin:     u.Scheme + "://" + u.Host,
		resultChan: make(chan CatchResult, 1),
	}, nil
}

// Routes returns the HTTP routes this handler serves.
func (c *Catcher) Routes() []string {
	return []string{"/"}
}

func (c *Catcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	result, err := session.Bootstrap(c.session, c.origin+r.URL.RequestURI())
	if err != nil {
		c.Send(CatchResult{err: err})
		http.Error(w, "Failed to store credentials: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if result.FromRedirect {
		c.Send(CatchResult{Bootstrap: result})
	}

	page := catcherPage{
		Location:      relativeLocation(result.Location),
		Authenticated: result.State.Phase == session.Authenticated,
		FromRedirect:  result.FromRedirect,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := catcherTemplate.Execute(w, page); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Send delivers result through the channel (only once).
func (c *Catcher) Send(result CatchResult) {
	c.once.Do(func() {
		c.resultChan <- result
		close(c.resultChan)
	})
}

// Result receives exactly one result and is then closed.
func (c *Catcher) Result() <-chan CatchResult {
	return c.resultChan
}

func relativeLocation(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.RequestURI() == "" {
		return "/"
	}
	return u.RequestURI()
}

type catcherPage struct {
	Location      string
	Authenticated bool
	FromRedirect  bool
}

var catcherTemplate = template.Must(template.New("catcher").Parse(strings.TrimSpace(`
<!DOCTYPE html>
<html>
<head>
    <title>soundcheck</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
    <script>history.replaceState(null, "", {{.Location}});</script>
</head>
<body>
    <div class="container">
    {{- if .FromRedirect}}
        <h1>✓ Authorization Successful</h1>
        <p>You can close this window and return to the terminal.</p>
    {{- else if .Authenticated}}
        <h1>Signed in</h1>
        <p>soundcheck already has stored credentials.</p>
    {{- else}}
        <h1>Not signed in</h1>
        <p>Run <code>soundcheck auth login</code> to connect Spotify.</p>
    {{- end}}
    </div>
</body>
</html>
`)))
