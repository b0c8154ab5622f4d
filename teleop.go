package main

import (
	"log"
	"net/http"

	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TeleopHandler upgrades the operator connection and hands it to the
// conductor: commands flow down, telemetry frames flow back up.
func TeleopHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Print("upgrade:", err)
		return
	}

	ENV.Conductor.AddClient(conn)
}

// EndpointsHandler serves the static network table so the operator UI can
// locate the camera streams.
func EndpointsHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, ENV.Network)
}
