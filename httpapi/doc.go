// Package httpapi exposes the service over HTTP: one webhook endpoint per
// payment provider, an authenticated team-management endpoint, and the
// effective-access read endpoint.
//
// Webhook bodies are authenticated with the provider's own signature scheme
// before any parsing happens. Processed and deliberately ignored events both
// acknowledge with 200 so providers stop redelivering; malformed or
// unauthenticated payloads get 4xx. Domain errors map onto the narrowest
// correct status code: validation 400, auth 401, ownership and seat locks
// 403, business conflicts 409, upstream failures 502.
package httpapi
