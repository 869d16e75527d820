// File: internal/testapp/testapp.go
//
// Package testapp is an in-process stand-in for the CRUD application's
// authentication surface: sign-in form, credential verification, session
// introspection, the credentials callback, an error page, and the
// test-setup endpoint. It exists so the orchestrator can be exercised
// hermetically, without the real application or its database.
package testapp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// FailMode selects how the callback reports a rejected credential.
type FailMode int

const (
	// FailWithStatus responds 401 with a JSON body, the default.
	FailWithStatus FailMode = iota
	// FailWithErrorPage responds 200 but redirects the client to the
	// error route, the way some auth frameworks surface rejections.
	FailWithErrorPage
)

// SessionCookie is the name of the session-token cookie the app issues.
const SessionCookie = "next-auth.session-token"

// App holds the fake application's state. Safe for concurrent use.
type App struct {
	// SubmitLabel is the text of the form's submit button. An empty
	// label renders an unlabelled generic submit control.
	SubmitLabel string
	// Mode controls rejected-credential behaviour.
	Mode FailMode
	// EnforceCSRF rejects callback posts whose csrfToken does not match
	// the form's hidden input.
	EnforceCSRF bool

	mu       sync.Mutex
	users    map[string]string // email -> bcrypt hash
	sessions map[string]string // token -> email
	csrf     string

	// Request counters for assertions.
	SignInPageHits atomic.Int64
	CallbackHits   atomic.Int64
	VerifyHits     atomic.Int64
}

// New creates an empty fake application.
func New() *App {
	return &App{
		SubmitLabel: "Sign in",
		users:       make(map[string]string),
		sessions:    make(map[string]string),
		csrf:        uuid.NewString(),
	}
}

// AddUser registers a credential. MinCost keeps test startup fast.
func (a *App) AddUser(email, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err) // MinCost hashing cannot fail on valid input
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[email] = string(hash)
}

// SessionFor returns the email bound to a session token, if any.
func (a *App) SessionFor(token string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	email, ok := a.sessions[token]
	return email, ok
}

// RevokeSessions invalidates every issued session token, simulating
// backend-side session expiry while clients still hold cookies.
func (a *App) RevokeSessions() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = make(map[string]string)
}

// Handler returns the application's router.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", a.handleHome)
	r.Get("/auth/signin", a.handleSignInPage)
	r.Get("/auth/error", a.handleErrorPage)
	r.Post("/api/auth/callback/credentials", a.handleCallback)
	r.Post("/api/auth/verify", a.handleVerify)
	r.Get("/api/auth/session", a.handleSession)
	r.Post("/api/test-setup", a.handleTestSetup)
	return r
}

func (a *App) currentUser(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	return a.SessionFor(cookie.Value)
}

func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if email, ok := a.currentUser(r); ok {
		fmt.Fprintf(w, `<html><body>
<button type="button">%s</button>
<button type="button">Sign out</button>
<a href="/add">Add Stuff</a>
<a href="/list">List Stuff</a>
</body></html>`, email)
		return
	}
	fmt.Fprint(w, `<html><body><a href="/auth/signin">Sign in</a></body></html>`)
}

func (a *App) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	a.SignInPageHits.Add(1)

	a.mu.Lock()
	csrf := a.csrf
	a.mu.Unlock()

	submit := `<button type="submit"></button>`
	if a.SubmitLabel != "" {
		submit = fmt.Sprintf(`<button type="submit">%s</button>`, a.SubmitLabel)
	}

	// The form posts via fetch and follows the JSON "url" field, the
	// way single-page auth frameworks drive their credential callbacks.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body>
<form method="post" action="/api/auth/callback/credentials">
  <input type="hidden" name="csrfToken" value="%s">
  <input type="text" name="email">
  <input type="password" name="password">
  %s
</form>
<script>
document.querySelector('form').addEventListener('submit', async (e) => {
  e.preventDefault();
  const body = new URLSearchParams(new FormData(e.target));
  const res = await fetch('/api/auth/callback/credentials', {method: 'POST', body});
  let payload = {};
  try { payload = await res.json(); } catch (err) {}
  if (payload.url) { window.location.href = payload.url; }
});
</script>
</body></html>`, csrf, submit)
}

func (a *App) handleErrorPage(w http.ResponseWriter, r *http.Request) {
	msg := r.URL.Query().Get("error")
	if msg == "" {
		msg = "Unknown error"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body><div role="alert">%s</div></body></html>`, msg)
}

func (a *App) handleCallback(w http.ResponseWriter, r *http.Request) {
	a.CallbackHits.Add(1)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	a.mu.Lock()
	hash, userExists := a.users[email]
	csrf := a.csrf
	a.mu.Unlock()

	if a.EnforceCSRF && r.PostFormValue("csrfToken") != csrf {
		a.reject(w, "MissingCSRF")
		return
	}

	if !userExists || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		a.reject(w, "CredentialsSignin")
		return
	}

	token := uuid.NewString()
	a.mu.Lock()
	a.sessions[token] = email
	a.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"url": "/"})
}

func (a *App) reject(w http.ResponseWriter, code string) {
	errorURL := "/auth/error?error=" + code
	if a.Mode == FailWithErrorPage {
		writeJSON(w, http.StatusOK, map[string]any{"url": errorURL, "error": code})
		return
	}
	writeJSON(w, http.StatusUnauthorized, map[string]any{"url": errorURL, "error": code})
}

// handleVerify mirrors the backend's credential-verification route:
// 400 for malformed input, 401 for an unknown user, otherwise a verdict.
func (a *App) handleVerify(w http.ResponseWriter, r *http.Request) {
	a.VerifyHits.Add(1)

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Email and password are required"})
		return
	}

	a.mu.Lock()
	hash, ok := a.users[body.Email]
	a.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid credentials"})
		return
	}

	valid := bcrypt.CompareHashAndPassword([]byte(hash), []byte(body.Password)) == nil
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid})
}

func (a *App) handleSession(w http.ResponseWriter, r *http.Request) {
	if email, ok := a.currentUser(r); ok {
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"email": email}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// handleTestSetup confirms the requested fixture users exist, failing the
// whole request when any is missing.
func (a *App) handleTestSetup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Users []struct {
			Email string `json:"email"`
		} `json:"users"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, u := range body.Users {
		if _, ok := a.users[u.Email]; !ok {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": fmt.Sprintf("User %s not found in database", u.Email),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Test setup successful"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
