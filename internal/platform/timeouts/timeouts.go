// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between collaborator boundaries
// and makes the durations discoverable.
package timeouts

import "time"

// Render caps a single HTML-to-binary render call.
const Render = 15 * time.Second

// BlobStore caps a single blob storage upload.
const BlobStore = 10 * time.Second

// Notify caps a single outbound notification send (carrier or agency email).
const Notify = 10 * time.Second

// ActivityLog caps a fire-and-forget activity log record.
const ActivityLog = 2 * time.Second

// TaxLookup caps a premium tax rate lookup.
const TaxLookup = 2 * time.Second

// Shutdown limits how long the server waits for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second
