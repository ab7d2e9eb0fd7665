// Package server provides HTTP routing, middleware, the JSON API and OAuth handling for tracksync.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so handlers read
// wildcards with [http.Request.PathValue].
//
// [Listen] binds the address before serving; [Server.Shutdown] drains in-flight requests.
//
// # API
//
// [API] exposes the orchestrator and the scheduler (`tracksync serve`):
//
//	POST   /api/sync                              start a sync, 202 + job id (409 while one runs)
//	GET    /api/jobs                              recent jobs, newest first
//	GET    /api/jobs/{id}                         job status
//	GET    /api/jobs/{id}/events                  SSE stream of one job, closed after its finish event
//	GET    /api/events                            SSE stream of every broadcast event
//	POST   /api/playlists/{service}/{id}/dedupe   write a "(deduped)" copy
//	GET    /api/playlists/{service}/{id}/export   ?format=csv|json|xml|xspf|txt|markdown
//	GET    /api/schedules                         scheduled jobs
//	POST   /api/schedules                         create
//	GET    /api/schedules/{id}                    get
//	PATCH  /api/schedules/{id}                    update
//	DELETE /api/schedules/{id}                    delete
//	POST   /api/schedules/{id}/run                run now (?wait=true blocks)
//	GET    /metrics                               Prometheus metrics
//
// Errors are JSON objects with an "error" field; [StatusFor] maps the shared sentinels to status codes.
//
// # OAuth Callback Handler
//
// OAuthHandler implements the OAuth2 authorization code callback flow.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel. It only processes one callback to prevent replay attacks.
//
// When `tracksync auth` runs, a temporary HTTP server starts on the configured redirect address, handles the
// callback, and shuts down after receiving the token.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
