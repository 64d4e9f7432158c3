// Package ws streams case state over a WebSocket.
//
// After connecting, a client receives {"type":"state","event":...} for
// every transition of any case. It may send:
//
//	{"type":"submit","mode":"benchmark","testCase":{...},"setup":"...","typescript":true}
//	{"type":"cancel","id":"case-id"}
//	{"type":"ping"}
//
// Submissions and cancels are acknowledged with "accepted" or "error".
package ws
