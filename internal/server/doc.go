// Package server implements the temporary loopback HTTP server used by
// the Spotify authentication flow.
//
// The [CallbackHandler] validates the OAuth2 state parameter (CSRF
// protection) and hands the authorization code back through a channel;
// it processes exactly one callback to prevent replay. [Await] runs the
// server on the configured redirect address for the duration of one
// authorization and shuts it down as soon as a code arrives or the
// timeout elapses.
package server
