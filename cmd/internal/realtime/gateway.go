package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	authapi "waypoint/cmd/internal/auth/api"
)

// Subprotocol is the websocket subprotocol clients must offer.
const Subprotocol = "waypoint.places.v1"

const closeGrace = time.Second

// Gateway upgrades gated requests into live place-feed subscriptions.
//
// It enforces the origin policy, requires the subprotocol, keeps the
// connection alive with pings and drains inbound frames under a rate limit.
// The feed is server-to-client; inbound frames are answered with an error.
type Gateway struct {
	log *slog.Logger
	hub *Hub
	cfg Config

	// websocket.Accept runs its own origin check; patterns keep it aligned
	// with the allowlist.
	originPatterns []string

	now func() time.Time
}

// NewGateway constructs a Gateway broadcasting from hub.
func NewGateway(log *slog.Logger, hub *Hub, cfg Config) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log)
	}
	cfg = cfg.normalized()
	return &Gateway{
		log:            log,
		hub:            hub,
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// ServeHTTP runs one subscription. It must be mounted behind the auth gate.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	who, ok := authapi.IdentityFromContext(r.Context())
	if !ok {
		authapi.WriteError(w, http.StatusUnauthorized, authapi.KindAuthorization, nil)
		return
	}
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("realtime.ws.reject.origin", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Server-wide request deadlines must not cut long-lived subscriptions.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Info("realtime.ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		g.log.Info("realtime.ws.reject.subprotocol", "got", sp)
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	connID, err := NewConnectionID(g.now())
	if err != nil {
		g.log.Error("realtime.ws.id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	client := NewClient(connID, who.SubjectID, g.cfg.SendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Detach(connID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	welcome, err := newEnvelope(TypeWelcome, WelcomePayload{ConnectionID: connID}, g.now())
	if err == nil {
		client.Send <- welcome
	}
	g.hub.Attach(client)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.writeLoop(ctx, conn, client, shutdown)
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		g.heartbeatLoop(ctx, conn, client, shutdown)
	}()

	g.readLoop(ctx, conn, client, shutdown)

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone
	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
}

func (g *Gateway) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client, shutdown func(websocket.StatusCode, string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			// Detached by the hub (server shutdown) or by shutdown itself.
			shutdown(websocket.StatusGoingAway, "server shutdown")
			return
		case env := <-client.Send:
			wctx, wcancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
			err := wsjson.Write(wctx, conn, env)
			wcancel()
			if err != nil {
				g.log.Info("realtime.ws.write.fail", "connection_id", client.ID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

func (g *Gateway) heartbeatLoop(ctx context.Context, conn *websocket.Conn, client *Client, shutdown func(websocket.StatusCode, string)) {
	t := time.NewTicker(g.cfg.HeartbeatInterval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			g.log.Info("realtime.ws.ping.fail", "connection_id", client.ID, "failures", failures, "err", err)
			if failures >= g.cfg.MaxPingFailures {
				shutdown(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

// readLoop drains inbound frames until the peer goes away. It also drives
// pong handling for the heartbeat.
func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, client *Client, shutdown func(websocket.StatusCode, string)) {
	limiter := newFrameLimiter(g.cfg.RateEvents, g.cfg.RateWindow)
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			if !isExpectedClose(err) {
				g.log.Info("realtime.ws.read.fail", "connection_id", client.ID, "err", err)
			}
			shutdown(websocket.StatusNormalClosure, "peer closed")
			return
		}
		if !limiter.Allow(g.now()) {
			g.trySendError(client, "rate_limited", "too many frames")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			return
		}
		g.trySendError(client, "unsupported", "this feed does not accept client frames")
	}
}

func (g *Gateway) trySendError(client *Client, code, msg string) {
	env, err := newEnvelope(TypeError, ErrorPayload{Code: code, Message: msg}, g.now())
	if err != nil {
		return
	}
	select {
	case <-client.Done():
	case client.Send <- env:
	default:
	}
}

func isExpectedClose(err error) bool {
	if websocket.CloseStatus(err) != -1 {
		return true
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF)
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}
	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	host := originHost(origin)
	for _, a := range g.cfg.AllowedOrigins {
		if a == "*" || a == origin {
			return nil
		}
		if host != "" && host == originHost(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHost(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	return strings.ToLower(s)
}

func originPatterns(allowed []string) []string {
	var out []string
	for _, a := range allowed {
		if a == "*" {
			return []string{"*"}
		}
		h := originHost(a)
		if h == "" {
			continue
		}
		// Accept matches against host[:port]; enforceOrigin ignores ports.
		for _, p := range []string{h, h + ":*"} {
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	slices.Sort(out)
	return out
}
