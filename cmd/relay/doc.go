// Package main runs the UDP relay gateway: a WebSocket-to-UDP bridge that
// lets the TS3 client engine reach a voice server from environments that
// block outbound UDP.
//
// Environment
//
//	PROXY_PORT    listener port (default 9988)
//	PROXY_SECRET  shared token required on every upgrade; if unset, a
//	              16-byte hex token is generated and logged at startup
//
// Upgrade URL
//
//	ws://<host>:<port>/?token=<secret>&host=<target-host>&port=<target-udp-port>
//
// port defaults to 9987 (a stock TeamSpeak 3 voice server) if omitted.
// GET /health returns {"status":"ok","uptime":<seconds>} and does not
// require the token.
//
// The process shuts down on SIGINT, closing every tracked session's stream
// and UDP socket before the listener.
package main
