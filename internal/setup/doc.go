// Package setup serves the integration setup flow.
//
// An access token record maps an opaque ID to a previously issued signed
// token. GET /setup?token=<id> resolves the record, verifies the signature,
// decodes projectId / loginToken / integrationName, and returns an HTML page
// embedding that payload as JSON for client-side bootstrap. The records live
// in SQLite; the core treats them as read-only at this boundary.
package setup
