package handlers

import (
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/remdesk/agent/internal/relay"
)

// VNCWS bridges a browser WebSocket to a VNC TCP endpoint as a pure
// byte-transparent relay. Query parameters:
//   - host: (optional) target host; empty or loopback resolves to the
//     locally-running VNC server.
//   - port: (optional) target port; for loopback targets it must match the
//     live server's bound port.
//
// Target resolution failures reject the request before any socket is opened.
func (a *API) VNCWS(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	port := 0
	if ps := r.URL.Query().Get("port"); ps != "" {
		p, err := strconv.Atoi(ps)
		if err != nil || p <= 0 || p > 65535 {
			writeError(w, http.StatusBadRequest, "Invalid port")
			return
		}
		port = p
	}

	addr, err := a.VNC.Resolve(host, port)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	// Accept with client's requested subprotocol
	requestedProtocol := r.Header.Get("Sec-WebSocket-Protocol")
	var subprotocols []string
	if requestedProtocol != "" {
		subprotocols = strings.Split(requestedProtocol, ", ")
	}

	clientConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       subprotocols,
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("vnc: websocket accept error: %v", err)
		return
	}
	defer clientConn.CloseNow()

	// Dial failures surface immediately; no relay-imposed timeout.
	target, err := net.Dial("tcp", addr)
	if err != nil {
		log.Printf("vnc: cannot connect to %s: %v", addr, err)
		clientConn.Close(4502, "Cannot connect to VNC target")
		return
	}

	// Increase read limit for VNC traffic
	clientConn.SetReadLimit(4 * 1024 * 1024) // 4MB

	browser := relay.NewSocketEndpoint(clientConn, websocket.MessageBinary)
	tcp := relay.NewConnEndpoint(target)

	out := relay.Run(r.Context(), browser, tcp)
	log.Printf("vnc: tunnel to %s closed reason=%s browser→vnc=%dB vnc→browser=%dB",
		addr, out.Reason, out.AToB, out.BToA)
	if out.Err != nil {
		log.Printf("vnc: tunnel to %s relay error: %v", addr, out.Err)
	}

	clientConn.Close(websocket.StatusNormalClosure, "")
}
