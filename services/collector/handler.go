package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// DefaultOrigins are the browser origins allowed on the stream.
var DefaultOrigins = []string{"localhost:*", "127.0.0.1:*", "192.168.*.*:*"}

const writeTimeout = time.Second

// Handler serves:
//
//	GET /ir/captures[?source=<domain>/<name>]  JSON map of source -> captures
//	GET /ir/sources                            JSON list of sources
//	    /ir/stream                             websocket of new/updated captures
func Handler(st *Store, origins []string) http.Handler {
	if origins == nil {
		origins = DefaultOrigins
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ir/captures", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, st.Snapshot(r.URL.Query().Get("source")))
	})
	mux.HandleFunc("/ir/sources", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, st.Sources())
	})
	mux.HandleFunc("/ir/stream", func(w http.ResponseWriter, r *http.Request) {
		stream(w, r, st, origins)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error("encode", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Add("Content-Type", "application/json")
	w.Header().Add("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(b)
}

func stream(w http.ResponseWriter, r *http.Request, st *Store, origins []string) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
	if err != nil {
		log.Warn("websocket accept", "err", err)
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "handler exits")
	log.Info("stream open", "remote", r.RemoteAddr)

	updates, cancel := st.Subscribe()
	defer cancel()

	// Clients only listen; CloseRead handles their control frames.
	ctx := c.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			log.Info("stream closed", "remote", r.RemoteAddr)
			return
		case upd := <-updates:
			if err := writeCapture(ctx, c, upd); err != nil {
				log.Warn("stream write", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

func writeCapture(ctx context.Context, c *websocket.Conn, v Capture) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, v)
}
