// Package server is the WebSocket transport in front of the relay router.
//
// Each upgraded connection gets a relay.Session and two pumps: the read pump
// feeds payloads to the router one at a time and the write pump drains the
// session's outbound queue, one text frame per line. The Hub tracks live
// connections so they can be closed on shutdown.
package server
