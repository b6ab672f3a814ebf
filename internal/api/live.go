package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const liveWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// LiveHandler streams session snapshots over a websocket until the session
// ends or the client goes away.
func (app *App) LiveHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := app.controller(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.Logger.Warn("live upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	updates, cancel := c.Subscribe()
	defer cancel()

	// Reads only detect the client closing.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	for snap := range updates {
		conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
}
