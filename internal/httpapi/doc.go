// Package httpapi exposes the relay over HTTP.
//
// Endpoints:
//
//	GET  /ws                  WebSocket upgrade; runs one session
//	GET  /api/get_test/{id}   public quiz plus owner online status
//	POST /api/submit          mark answers; on pass notify the owner server
//	POST /api/upload          store a quiz for the server owning client_key
//	POST /api/register        register a server and return its key
//	GET  /health              router stats, store reachability, build info
//
// Upload and register are not mounted in self-hosted mode.
package httpapi
