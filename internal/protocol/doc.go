// Package protocol defines the JSON frames exchanged over the relay WebSocket.
//
// Client → server, first text frame only:
//
//	{"key": "<shared secret>"}
//
// Server → client:
//
//	{"code": 1, "server_name": "<owner>"}   verification accepted
//	{"code": -1}                            unknown key
//	{"code": -2}                            key already bound to another connection
//	{"code": 2, "msg": "<payload>"}         routed notification
//
// Heartbeats use WebSocket ping/pong control frames, never JSON.
package protocol
