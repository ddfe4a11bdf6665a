// Package websocket provides real-time reading streaming via WebSocket.
//
// Clients connect to /ws, receive a reading.snapshot frame, then one JSON
// frame per reading event.
package websocket
