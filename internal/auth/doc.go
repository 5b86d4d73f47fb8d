// Package auth acquires and caches the bearer credential the node presents
// to the hive.
//
// # Flow
//
// The node authenticates without user interaction:
//
//  1. POST {auth}/authorize with the node identity, redirect URI, scope,
//     scent tag and an S256 PKCE challenge; redirects are not followed.
//  2. Read the authorization code from the redirect's Location header.
//  3. Exchange the code at {auth}/token (golang.org/x/oauth2).
//  4. Cache the access token until it expires.
//
// # Expiry
//
// The expiry comes from the first source available: the token response's
// expires_in, the exp claim of a JWT access token, or issue time plus the
// configured validity window (one hour by default).
//
// # Concurrency
//
// Concurrent callers that find no valid credential share a single
// acquisition. A caller whose context ends stops waiting; the acquisition
// itself keeps running and its result is cached for the next caller.
package auth
