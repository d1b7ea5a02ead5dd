package gorouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	router "github.com/goliatone/go-router"

	"github.com/goliatone/go-commerce-dashboard/components/dashboard"
	"github.com/goliatone/go-commerce-dashboard/components/dashboard/commands"
	"github.com/goliatone/go-commerce-dashboard/components/dashboard/httpapi"
	"github.com/goliatone/go-commerce-dashboard/components/dashboard/queries"
)

// DefaultRememberFor is the lifetime of a remembered session cookie.
const DefaultRememberFor = 30 * 24 * time.Hour

// Config wires go-router with the dashboard service, controller and APIs.
type Config[T any] struct {
	Router     router.Router[T]
	Service    *dashboard.Service
	Controller *dashboard.Controller
	API        httpapi.Executor
	Broadcast  *dashboard.BroadcastHook
	Gate       *dashboard.SessionGate
	Verifier   dashboard.TokenVerifier
	Health     func(context.Context) error
	Routes     RouteConfig

	RememberFor   time.Duration
	SecureCookies bool
}

// RouteConfig customizes the paths of the non-page endpoints.
type RouteConfig struct {
	Views     string
	WebSocket string
	Session   string
	Contact   string
	Health    string
}

// Register mounts pages, the view API, the session endpoints and the event
// socket on a go-router router.
func Register[T any](cfg Config[T]) error {
	if cfg.Router == nil {
		return errors.New("gorouter: router is required")
	}
	if cfg.Controller == nil {
		return errors.New("gorouter: controller is required")
	}
	if cfg.Service == nil {
		return errors.New("gorouter: service is required")
	}
	if cfg.Gate == nil {
		cfg.Gate = dashboard.NewSessionGate()
	}
	if cfg.RememberFor <= 0 {
		cfg.RememberFor = DefaultRememberFor
	}
	cfg.Routes = defaultRouteConfig(cfg.Routes)
	s := &server[T]{cfg: cfg}

	for _, page := range staticPages {
		cfg.Router.Get(page.path, s.gated(page.path, s.pageHandler(page)))
	}
	for _, def := range cfg.Service.Views().Definitions() {
		cfg.Router.Get(def.Route, s.gated(def.Route, s.viewHandler(def.Route)))
	}

	if cfg.API != nil {
		s.registerViewAPI()
	}
	s.registerSession()
	if cfg.Broadcast != nil {
		s.registerWebSocket()
	}
	cfg.Router.Get(cfg.Routes.Health, router.WrapHandler(s.health))
	return nil
}

type server[T any] struct {
	cfg Config[T]
}

type staticPage struct {
	path  string
	name  string
	title string
}

var staticPages = []staticPage{
	{path: "/", name: "home", title: "Commerce Dashboard"},
	{path: "/login", name: "login", title: "Log in"},
	{path: "/signup", name: "signup", title: "Sign up"},
	{path: "/about", name: "about", title: "About"},
	{path: "/contact", name: "contact", title: "Contact"},
	{path: "/account", name: "account", title: "Account"},
}

type sessionHandler func(ctx router.Context, session *dashboard.SessionContext) error

// gated restores the session from the request and applies the route gate
// before handing over to the page.
func (s *server[T]) gated(path string, next sessionHandler) router.HandlerFunc {
	return router.WrapHandler(func(ctx router.Context) error {
		session := s.restore(ctx)
		decision := s.cfg.Gate.Decide(path, session.Current().Authenticated())
		if !decision.Allow {
			return redirect(ctx, decision.Redirect)
		}
		return next(ctx, session)
	})
}

// authorized guards the JSON endpoints, which answer 401 instead of redirecting.
func (s *server[T]) authorized(next sessionHandler) router.HandlerFunc {
	return router.WrapHandler(func(ctx router.Context) error {
		session := s.restore(ctx)
		if !session.Current().Authenticated() {
			return respondError(ctx, http.StatusUnauthorized, dashboard.ErrMissingToken)
		}
		return next(ctx, session)
	})
}

type ownedHandler func(ctx router.Context, view *dashboard.DashboardView) error

// owned resolves the :id view for the signed-in subject. Views opened by
// another subject answer 404.
func (s *server[T]) owned(next ownedHandler) router.HandlerFunc {
	return s.authorized(func(ctx router.Context, session *dashboard.SessionContext) error {
		view, status, err := viewAccess(ctx.Context(), s.cfg.Service, session.Current(), ctx.Param("id"))
		if err != nil {
			return respondError(ctx, status, err)
		}
		return next(ctx, view)
	})
}

// viewAccess returns the view id names when session may use it, or the HTTP
// status to answer with.
func viewAccess(ctx context.Context, service *dashboard.Service, session dashboard.Session, id string) (*dashboard.DashboardView, int, error) {
	if !session.Authenticated() {
		return nil, http.StatusUnauthorized, dashboard.ErrMissingToken
	}
	if strings.TrimSpace(id) == "" {
		return nil, http.StatusBadRequest, errors.New("gorouter: view id is required")
	}
	view, err := service.ViewFor(ctx, id, session.Subject)
	if err != nil {
		return nil, httpapi.StatusFor(err), err
	}
	return view, http.StatusOK, nil
}

// restore builds the per-request session and writes the cookie whenever the
// session changes.
func (s *server[T]) restore(ctx router.Context) *dashboard.SessionContext {
	session := dashboard.NewSessionContext(s.cfg.Verifier)
	token := dashboard.ExtractToken(cookieValue(ctx.Header("Cookie"), dashboard.SessionCookie), ctx.Header("Authorization"))
	if token != "" {
		session.Restore(ctx.Context(), token)
	}
	session.Subscribe(func(next dashboard.Session) {
		ctx.SetHeader("Set-Cookie", sessionCookie(next, s.cfg.RememberFor, s.cfg.SecureCookies).String())
	})
	return session
}

func (s *server[T]) pageHandler(page staticPage) sessionHandler {
	return func(ctx router.Context, session *dashboard.SessionContext) error {
		current := session.Current()
		data := map[string]any{
			"page":          page.name,
			"title":         page.title,
			"notice":        ctx.Query("notice"),
			"authenticated": current.Authenticated(),
			"subject":       current.Subject,
		}
		var buf bytes.Buffer
		if err := s.cfg.Controller.RenderPage("page", data, &buf); err != nil {
			return respondError(ctx, http.StatusInternalServerError, err)
		}
		return sendHTML(ctx, buf.Bytes())
	}
}

func (s *server[T]) viewHandler(route string) sessionHandler {
	return func(ctx router.Context, session *dashboard.SessionContext) error {
		viewer := session.Current().Viewer(inferLocale(ctx))
		view, err := s.cfg.Service.OpenRoute(ctx.Context(), viewer, route, selectionQuery(ctx))
		if err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		var buf bytes.Buffer
		if err := s.cfg.Controller.RenderView(ctx.Context(), view, &buf); err != nil {
			return respondError(ctx, http.StatusInternalServerError, err)
		}
		return sendHTML(ctx, buf.Bytes())
	}
}

func (s *server[T]) registerViewAPI() {
	api := s.cfg.API
	base := s.cfg.Routes.Views

	s.cfg.Router.Get(base+"/:id", s.owned(func(ctx router.Context, view *dashboard.DashboardView) error {
		snap, err := api.Snapshot(ctx.Context(), queries.ViewSnapshotInput{ViewID: view.ID()})
		if err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, snap)
	}))

	s.cfg.Router.Delete(base+"/:id", s.owned(func(ctx router.Context, view *dashboard.DashboardView) error {
		if err := api.CloseView(ctx.Context(), commands.CloseViewInput{ViewID: view.ID()}); err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "closed"})
	}))

	s.cfg.Router.Post(base+"/:id/filters", s.owned(func(ctx router.Context, view *dashboard.DashboardView) error {
		var mutation dashboard.FilterMutation
		if err := json.Unmarshal(ctx.Body(), &mutation); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		snap, err := api.ApplyFilters(ctx.Context(), commands.ApplyFiltersInput{ViewID: view.ID(), Mutation: mutation})
		if err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, snap)
	}))

	s.cfg.Router.Post(base+"/:id/params", s.owned(func(ctx router.Context, view *dashboard.DashboardView) error {
		var payload commands.SetParamsInput
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		payload.ViewID = view.ID()
		snap, err := api.SetParams(ctx.Context(), payload)
		if err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, snap)
	}))

	s.cfg.Router.Get(base+"/:id/panels/:name", s.owned(func(ctx router.Context, view *dashboard.DashboardView) error {
		html, err := s.cfg.Controller.PanelHTML(view, ctx.Param("name"))
		if err != nil {
			return respondError(ctx, httpapi.StatusFor(err), err)
		}
		return sendHTML(ctx, []byte(html))
	}))

	s.cfg.Router.Post(s.cfg.Routes.Contact, router.WrapHandler(func(ctx router.Context) error {
		form, isJSON, err := readForm(ctx)
		if err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		msg := dashboard.ContactMessage{
			Name:    form.Get("name"),
			Email:   form.Get("email"),
			Subject: form.Get("subject"),
			Message: form.Get("message"),
		}
		err = api.SubmitContact(ctx.Context(), msg)
		if isJSON {
			if err != nil {
				return respondError(ctx, httpapi.StatusFor(err), err)
			}
			return ctx.JSON(http.StatusAccepted, map[string]string{"status": "sent"})
		}
		if err != nil {
			return redirect(ctx, "/contact?notice="+url.QueryEscape(contactNotice(err)))
		}
		return redirect(ctx, "/contact?notice="+url.QueryEscape("Message sent. Thank you!"))
	}))
}

func (s *server[T]) registerSession() {
	path := s.cfg.Routes.Session

	s.cfg.Router.Post(path, router.WrapHandler(func(ctx router.Context) error {
		form, isJSON, err := readForm(ctx)
		if err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		session := s.restore(ctx)
		current, err := session.SignIn(ctx.Context(), form.Get("token"), truthy(form.Get("remember")))
		if isJSON {
			if err != nil {
				return respondError(ctx, http.StatusUnauthorized, err)
			}
			return ctx.JSON(http.StatusOK, current)
		}
		if err != nil {
			return redirect(ctx, "/login?notice="+url.QueryEscape("Sign in failed"))
		}
		return redirect(ctx, s.cfg.Gate.Decide("/login", true).Redirect)
	}))

	s.cfg.Router.Delete(path, router.WrapHandler(func(ctx router.Context) error {
		s.restore(ctx).SignOut()
		return ctx.JSON(http.StatusOK, map[string]string{"status": "signed_out"})
	}))

	s.cfg.Router.Post(path+"/logout", router.WrapHandler(func(ctx router.Context) error {
		s.restore(ctx).SignOut()
		return redirect(ctx, "/")
	}))
}

func (s *server[T]) health(ctx router.Context) error {
	if s.cfg.Health != nil {
		if err := s.cfg.Health(ctx.Context()); err != nil {
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		}
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// registerWebSocket streams the events of the ?view= view to the subject
// that opened it. Nothing is subscribed before the session is checked.
func (s *server[T]) registerWebSocket() {
	hook := s.cfg.Broadcast
	s.cfg.Router.WebSocket(s.cfg.Routes.WebSocket, router.DefaultWebSocketConfig(), func(ws router.WebSocketContext) error {
		session := s.restore(ws)
		view, status, err := viewAccess(ws.Context(), s.cfg.Service, session.Current(), ws.Query("view"))
		if err != nil {
			if werr := ws.WriteJSON(map[string]any{"error": err.Error(), "status": status}); werr != nil {
				return werr
			}
			return ws.Close()
		}
		events, cancel := hook.Subscribe(view.ID())
		defer cancel()
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return nil
				}
				if err := ws.WriteJSON(event); err != nil {
					return err
				}
			case <-ws.Context().Done():
				return ws.Close()
			}
		}
	})
}

func selectionQuery(ctx router.Context) url.Values {
	query := url.Values{}
	for _, facet := range dashboard.Facets() {
		if raw := ctx.Query(string(facet)); raw != "" {
			query.Set(string(facet), raw)
		}
	}
	return query
}

// readForm accepts both JSON objects and urlencoded bodies.
func readForm(ctx router.Context) (url.Values, bool, error) {
	body := ctx.Body()
	if strings.Contains(ctx.Header("Content-Type"), "application/json") {
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, true, err
		}
		form := url.Values{}
		for key, value := range payload {
			switch v := value.(type) {
			case string:
				form.Set(key, v)
			case bool:
				form.Set(key, strconv.FormatBool(v))
			}
		}
		return form, true, nil
	}
	form, err := url.ParseQuery(string(body))
	return form, false, err
}

func contactNotice(err error) string {
	if errors.Is(err, dashboard.ErrInvalidContact) {
		return "Please fill in every field with a valid email."
	}
	return "Failed to send message."
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func cookieValue(header, name string) string {
	if header == "" {
		return ""
	}
	cookies, err := http.ParseCookie(header)
	if err != nil {
		return ""
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// sessionCookie is persistent for remembered sessions and lives for the
// browser session otherwise. Signing out expires it.
func sessionCookie(session dashboard.Session, rememberFor time.Duration, secure bool) *http.Cookie {
	cookie := &http.Cookie{
		Name:     dashboard.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	switch {
	case !session.Authenticated():
		cookie.Value = ""
		cookie.MaxAge = -1
	case session.Remember:
		cookie.MaxAge = int(rememberFor.Seconds())
	}
	return cookie
}

func redirect(ctx router.Context, location string) error {
	ctx.SetHeader("Location", location)
	return ctx.JSON(http.StatusSeeOther, map[string]string{"redirect": location})
}

func sendHTML(ctx router.Context, body []byte) error {
	ctx.SetHeader("Content-Type", "text/html; charset=utf-8")
	return ctx.Send(body)
}

func inferLocale(ctx router.Context) string {
	if locale, ok := ctx.Locals("locale").(string); ok && locale != "" {
		return locale
	}
	if locale := strings.TrimSpace(ctx.Query("locale")); locale != "" {
		return strings.ToLower(locale)
	}
	return parseAcceptLanguage(ctx.Header("Accept-Language"))
}

func parseAcceptLanguage(header string) string {
	for _, token := range strings.Split(header, ",") {
		if idx := strings.Index(token, ";"); idx >= 0 {
			token = token[:idx]
		}
		if token = strings.TrimSpace(token); token != "" {
			return strings.ToLower(token)
		}
	}
	return ""
}

func respondError(ctx router.Context, status int, err error) error {
	return ctx.JSON(status, map[string]string{"error": err.Error()})
}

func defaultRouteConfig(routes RouteConfig) RouteConfig {
	if routes.Views == "" {
		routes.Views = "/dashboard/views"
	}
	if routes.WebSocket == "" {
		routes.WebSocket = "/dashboard/ws"
	}
	if routes.Session == "" {
		routes.Session = "/session"
	}
	if routes.Contact == "" {
		routes.Contact = "/contact"
	}
	if routes.Health == "" {
		routes.Health = "/healthz"
	}
	return routes
}
