// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command harpcd runs a bare session layer over one of the three
// reference transports, echoing every request payload back to its
// caller. It exists to exercise session.Layer end to end, not as a
// production server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/harpcgo/harpc/rpcerr"
	"github.com/harpcgo/harpc/session"
	"github.com/harpcgo/harpc/transport"
	"github.com/harpcgo/harpc/transport/http"
	"github.com/harpcgo/harpc/transport/tcp"
	"github.com/harpcgo/harpc/transport/ws"
)

var (
	addr           = flag.String("addr", ":4747", "address to listen on")
	transportName  = flag.String("transport", "tcp", `transport to use: "tcp", "ws", or "http"`)
	transactionCap = flag.Int("max-transactions", 0, "per-connection transaction limit (0 uses the default)")
	connectionCap  = flag.Int64("max-connections", 0, "concurrent connection limit (0 uses the default)")
	httpSecret     = flag.String("http-secret", "", "HMAC secret for HTTP resumption tokens (required for -transport=http)")
)

func main() {
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := session.Config{}
	if *transactionCap > 0 {
		cfg.TransactionLimit = *transactionCap
	}
	if *connectionCap > 0 {
		cfg.ConcurrentConnectionLimit = *connectionCap
	}

	tr, handler, err := buildTransport(logger)
	if err != nil {
		logger.Error("configuring transport", "error", err)
		os.Exit(1)
	}

	layer, err := session.NewLayer(cfg, tr, rpcerr.JSONEncoder{}, logger)
	if err != nil {
		logger.Error("building session layer", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if handler != nil {
		srv := &nethttp.Server{Addr: *addr, Handler: handler}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				logger.Error("http server failed", "error", err)
			}
		}()
	}

	txs, err := layer.Listen(ctx, *addr)
	if err != nil {
		logger.Error("listen failed", "error", err, "addr", *addr)
		os.Exit(1)
	}
	logger.Info("harpcd listening", "addr", *addr, "transport", *transportName)

	go logDroppedSessions(ctx, layer, logger)

	for tx := range txs {
		go echo(ctx, tx, logger)
	}
	logger.Info("harpcd shutting down")
}

// buildTransport returns the session transport plus, for transports that
// ride on an http.Server (ws, http), the handler harpcd must mount itself.
// tcp owns its socket directly and returns a nil handler.
func buildTransport(logger *slog.Logger) (transport.Transport, nethttp.Handler, error) {
	switch *transportName {
	case "tcp":
		return &tcp.Transport{Logger: logger}, nil, nil
	case "ws":
		wt := ws.NewServerTransport()
		return wt, wt, nil
	case "http":
		if *httpSecret == "" {
			return nil, nil, errors.New("-http-secret is required for -transport=http")
		}
		ht := &http.ServerTransport{Secret: []byte(*httpSecret)}
		return ht, ht, nil
	default:
		return nil, nil, errUnknownTransport{*transportName}
	}
}

type errUnknownTransport struct{ name string }

func (e errUnknownTransport) Error() string {
	return `unknown transport "` + e.name + `"`
}

// echo drains a transaction's request stream and writes each payload back
// unchanged, closing the writer once the request stream ends.
func echo(ctx context.Context, tx *session.Transaction, logger *slog.Logger) {
	w := tx.Writer()
	for payload := range tx.Requests() {
		w.Push(payload)
		if err := w.Flush(ctx); err != nil {
			logger.Warn("flush failed", "peer", tx.Peer(), "request", tx.RequestID(), "error", err)
			return
		}
	}
	if err := w.Close(ctx); err != nil {
		logger.Warn("close failed", "peer", tx.Peer(), "request", tx.RequestID(), "error", err)
	}
}

func logDroppedSessions(ctx context.Context, layer *session.Layer, logger *slog.Logger) {
	for {
		select {
		case ev, ok := <-layer.Events():
			if !ok {
				return
			}
			if dropped, ok := ev.(session.SessionDropped); ok {
				logger.Info("session dropped", "session", dropped.ID)
			}
		case <-ctx.Done():
			return
		}
	}
}
