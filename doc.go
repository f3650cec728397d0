// Package wsgate manages the lifecycle of persistent, bidirectional
// WebSocket connections: an upgrade-time authentication gate, a composable
// middleware pipeline, a declarative event router with response policies,
// and a miss-a-beat liveness monitor.
//
// # Basic Usage
//
// Declare a connection group, register it, then mount the upgrade endpoint:
//
//	group := wsgate.NewGroup("chat").
//	    OnConnect("HandleConnection", func(c *wsgate.Conn, r *http.Request) (any, error) {
//	        // runs once per connection, before any message listener fires
//	        return nil, nil
//	    }).
//	    OnMessage("chat.send", "SendMessage", func(c *wsgate.Conn, msg *wsgate.Message) (any, error) {
//	        var req ChatRequest
//	        if err := msg.Unmarshal(&req); err != nil {
//	            return nil, err
//	        }
//	        return map[string]any{"ok": true}, nil
//	    }).
//	    Emit("SendMessage").      // result goes back to the sender
//	    Broadcast("SendMessage"). // and to every open connection
//	    OnDisconnect("HandleDisconnect", func(c *wsgate.Conn, reason error) (any, error) {
//	        return nil, nil
//	    })
//
//	sup, err := wsgate.New(
//	    wsgate.WithMaxConnections(10000),
//	    wsgate.WithHeartbeat(30*time.Second),
//	    wsgate.WithLogger(log),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	if err := sup.RegisterGroup(group); err != nil {
//	    panic(err)
//	}
//	if err := sup.Run(); err != nil {
//	    panic(err)
//	}
//
//	http.Handle("/ws", sup.Handler()) // or r.GET("/ws", sup.GinHandler())
//
// # Upgrade Gate
//
// An optional predicate guards the HTTP-to-WebSocket upgrade. A predicate
// returning false, returning an error, or panicking are indistinguishable:
// the raw socket is destroyed and no connection is created. Pass nil to
// remove the predicate and restore unconditional accept:
//
//	sup.SetUpgradePredicate(func(ctx context.Context, r *http.Request) (bool, error) {
//	    return validateToken(r.URL.Query().Get("token"))
//	})
//
// # Middleware
//
// Middleware composes in registration order, process-wide chain first, then
// the group chain, then the descriptor chain. A middleware that does not
// call next short-circuits the whole chain:
//
//	sup.Use(func(c *wsgate.Conn, msg *wsgate.Message, next wsgate.NextFunc) (any, error) {
//	    start := time.Now()
//	    result, err := next(msg)
//	    log.Info("dispatch", zap.Duration("cost", time.Since(start)))
//	    return result, err
//	})
//
// # Response Policies
//
// A non-nil handler result is routed by the response policies declared for
// the handler's method name: Emit sends it to the originating connection,
// Broadcast to every open connection. With no declared policy the result is
// emitted to the originator. Messages carrying a request_id are
// request/response style: the result is answered directly to the requester
// and never reaches the response policies.
//
// # Liveness
//
// When enabled, the monitor sweeps all connections every interval: an ALIVE
// connection turns SUSPECT and receives a ping; a connection still SUSPECT
// at the next sweep (two consecutive missed intervals) is terminated. Pongs
// return a connection to ALIVE.
//
// Dispatch failures are isolated per invocation: a failing handler is
// logged and never terminates the connection, unregisters its listener, or
// affects other handlers.
package wsgate
