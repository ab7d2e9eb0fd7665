// Package services implements the [Source] and [Destination] interfaces for the Spotify and Apple Music HTTP APIs.
//
// # Service Interfaces
//
// All providers implement [Service]. The sync pipeline reads tracks through [Source] and matches
// and writes them through [Destination], so the orchestrator never touches provider JSON.
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 (authorization code with PKCE) for authentication. A 401 triggers one
// refresh through the [oauth2.Config] token source, and refreshed tokens are handed to an optional [TokenSaver].
//
// Tracks missing an ISRC are re-read in batches of 50 through the several-tracks endpoint.
//
// # Apple Music Implementation
//
// [AppleMusicService] authenticates with a developer token plus a music user token. Catalog search by ISRC and
// by term, library search, library insertion and playlist writes are exposed as [Destination] operations.
// The storefront comes from the account and falls back to the configured one.
//
// # Rate Limiting
//
// Every request is routed through a [ratelimit.Executor], which enforces the per-service rolling window and
// retries 429 and transient failures on the configured backoff schedule.
//
// # Error Handling
//
// Non-2xx responses become [shared.APIError] values, which match the shared sentinels with errors.Is:
//   - [shared.ErrNotAuthenticated] : no token stored
//   - [shared.ErrTokenExpired] : 401 that survived the single refresh
//   - [shared.ErrRateLimited] : 429 after retries
//   - [shared.ErrNotFound] : 404
//   - [shared.ErrServiceUnavailable] : 5xx after retries
//   - [shared.ErrAPIRequest] : any other failed request
//
// Playlist lookups additionally wrap [shared.ErrPlaylistNotFound].
package services
