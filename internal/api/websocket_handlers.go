package api

import (
	"log"
	"net/http"

	"serwer-licencji/internal/ws"
)

func (s *Server) ServeWsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}

	client := ws.NewClient(s.wsHub, conn)
	s.wsHub.Register <- client

	go client.ReadPump()
	go client.WritePump()
}
