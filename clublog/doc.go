// Package clublog is a small client for the ClubLog JSON API.
//
// It covers the six resources the bridge republishes:
//
//   - [Client.FetchDXCCMatrix]: per-entity, per-band confirmation status (authenticated)
//   - [Client.FetchWatch]: log summary for the configured callsign
//   - [Client.FetchMostWanted]: the most wanted DXCC entity ranking (no auth)
//   - [Client.FetchExpeditions]: currently active expeditions (no auth)
//   - [Client.FetchLivestreams]: currently active livestreams (no auth)
//   - [Client.FetchActivity]: hourly band activity for the last year
//
// Every fetch issues exactly one GET request with a 30 second timeout and
// fails with one of three typed errors:
//
//   - [*HTTPError]: the server answered with a non-2xx status
//   - [*TransportError]: DNS, connect, timeout or read failures
//   - [*DecodeError]: the body was not the JSON shape the resource uses
//
// The upstream data shape is otherwise not validated. [ComputeDXCCStats]
// reduces a [DXCCMatrix] to worked, confirmed and verified entity counts.
package clublog
