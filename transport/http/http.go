// Copyright 2026 The Harpc Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package http adapts the teacher's streamable HTTP transport
// (mcp.StreamableHTTPHandler, mcp/streamable.go) from MCP's JSON-RPC
// session continuity model to this module's binary wire frames: POST
// delivers request frames, a long-lived GET delivers an SSE stream of
// response frames, and a signed resumption token lets a client reconnect
// to the same session after a network blip without re-authenticating.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/harpcgo/harpc/transport"
	"github.com/harpcgo/harpc/wire"
	"github.com/segmentio/encoding/json"
	"github.com/yosida95/uritemplate/v3"
)

// DefaultMaxBodyBytes bounds a single POSTed frame. Adapted from the
// teacher's http_limits.go; this guards the demo transport's own resource
// use and is independent of the session core, which documents
// payload-size enforcement as a non-goal for itself.
const DefaultMaxBodyBytes int64 = 1_000_000

var resumeTemplate = uritemplate.MustNew("/rpc/{session}/resume{?token}")

// handshakeResponse is the JSON body returned from the initial POST that
// opens a session.
type handshakeResponse struct {
	Session string `json:"session"`
	Resume  string `json:"resume"`
}

type resumeClaims struct {
	Session string `json:"session"`
	jwt.RegisteredClaims
}

// ServerTransport is a transport.Transport backed by plain HTTP: POST to
// open or continue a session, GET for a Server-Sent-Events response
// stream, DELETE to close it. It implements http.Handler.
type ServerTransport struct {
	// Secret signs resumption tokens. It must be set before Listen is
	// called; a zero-length secret is rejected.
	Secret []byte
	// MaxBodyBytes bounds a single POSTed frame; zero selects
	// DefaultMaxBodyBytes, a negative value disables the limit.
	MaxBodyBytes int64

	mu       sync.Mutex
	sessions map[string]*session
	out      chan transport.IncomingConnection
	done     chan struct{}
}

// Listen implements transport.Transport. As with transport/ws, binding the
// socket is the caller's responsibility; Listen only opens the channel
// ServeHTTP feeds.
func (s *ServerTransport) Listen(ctx context.Context, _ string) (<-chan transport.IncomingConnection, error) {
	if len(s.Secret) == 0 {
		return nil, errors.New("http: ServerTransport.Secret must be set before Listen")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		return nil, errors.New("http: Listen called twice on the same ServerTransport")
	}
	s.sessions = make(map[string]*session)
	s.out = make(chan transport.IncomingConnection)
	s.done = make(chan struct{})
	go func() {
		<-ctx.Done()
		close(s.done)
		s.closeAll()
	}()
	return s.out, nil
}

func (s *ServerTransport) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, id)
	}
}

func (s *ServerTransport) effectiveMaxBodyBytes() int64 {
	switch {
	case s.MaxBodyBytes == 0:
		return DefaultMaxBodyBytes
	case s.MaxBodyBytes < 0:
		return 0
	default:
		return s.MaxBodyBytes
	}
}

// ServeHTTP routes POST (open/send), GET (SSE response stream), and DELETE
// (close) for paths of the form /rpc/{session}.
func (s *ServerTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleStream(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *ServerTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	id := sessionIDFromPath(r.URL.Path)
	if id == "" {
		s.openSession(w, r)
		return
	}
	if !s.authorize(w, r, id) {
		return
	}
	s.mu.Lock()
	sess := s.sessions[id]
	s.mu.Unlock()
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	if max := s.effectiveMaxBodyBytes(); max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, max)
	}
	data := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := r.Body.Read(buf)
		data = append(data, buf[:n]...)
		if err != nil {
			if isMaxBytesError(err) {
				writeRequestBodyTooLarge(w)
				return
			}
			break
		}
	}
	req, err := wire.DecodeRequest(data)
	if err != nil {
		http.Error(w, fmt.Sprintf("decoding request: %v", err), http.StatusBadRequest)
		return
	}
	if err := sess.deliver(r.Context(), req); err != nil {
		http.Error(w, err.Error(), http.StatusGone)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *ServerTransport) openSession(w http.ResponseWriter, r *http.Request) {
	var idBytes [16]byte
	if _, err := rand.Read(idBytes[:]); err != nil {
		http.Error(w, "minting session id", http.StatusInternalServerError)
		return
	}
	id := hex.EncodeToString(idBytes[:])

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, resumeClaims{
		Session: id,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		http.Error(w, "signing resumption token", http.StatusInternalServerError)
		return
	}

	values := uritemplate.Values{}
	values.Set("session", uritemplate.String(id))
	values.Set("token", uritemplate.String(signed))
	resumeURL := resumeTemplate.Expand(values)

	peer := wire.PeerID(r.RemoteAddr)
	sess := newSession(id, peer)

	s.mu.Lock()
	s.sessions[id] = sess
	out, done := s.out, s.done
	s.mu.Unlock()

	select {
	case out <- transport.IncomingConnection{Peer: peer, Sink: sess, Stream: sess}:
	case <-done:
		http.Error(w, "transport shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Link", fmt.Sprintf("<%s>; rel=\"resume\"", resumeURL))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	body, _ := json.Marshal(handshakeResponse{Session: id, Resume: resumeURL})
	w.Write(body)
}

func (s *ServerTransport) handleStream(w http.ResponseWriter, r *http.Request) {
	id := sessionIDFromPath(r.URL.Path)
	if !s.authorize(w, r, id) {
		return
	}
	s.mu.Lock()
	sess := s.sessions[id]
	s.mu.Unlock()
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sess.streamResponses(r.Context(), w, flusher)
}

func (s *ServerTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := sessionIDFromPath(r.URL.Path)
	if !s.authorize(w, r, id) {
		return
	}
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	sess.Close()
	w.WriteHeader(http.StatusNoContent)
}

// ValidateResumeToken checks a resumption token previously handed out by
// openSession and returns the session id it names. Exposed for callers that
// want to accept a resume request over a channel this package doesn't
// itself serve (e.g. a load balancer rehydrating a session on another
// node).
func (s *ServerTransport) ValidateResumeToken(token string) (string, error) {
	claims := &resumeClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("http: invalid resumption token: %w", err)
	}
	return claims.Session, nil
}

// authorize requires and checks a resumption token for id, matching the
// documented guarantee (SPEC_FULL.md §4.8) that a party cannot act on a
// session it was never handed the token for. It writes an error response
// and returns false on any failure: missing token, invalid signature or
// expiry, or a token minted for a different session id.
func (s *ServerTransport) authorize(w http.ResponseWriter, r *http.Request, id string) bool {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing resumption token", http.StatusUnauthorized)
		return false
	}
	claimedID, err := s.ValidateResumeToken(token)
	if err != nil {
		http.Error(w, "invalid resumption token", http.StatusUnauthorized)
		return false
	}
	if claimedID != id {
		http.Error(w, "resumption token does not match session", http.StatusForbidden)
		return false
	}
	return true
}

// bearerToken reads a resumption token from the "token" query parameter
// (the form the Link header's resume URL hands back) or an
// "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func sessionIDFromPath(path string) string {
	const prefix = "/rpc/"
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return ""
	}
	rest := path[len(prefix):]
	for i, c := range rest {
		if c == '/' {
			return rest[:i]
		}
	}
	return rest
}

func isMaxBytesError(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func writeRequestBodyTooLarge(w http.ResponseWriter) {
	w.Header().Set("Connection", "close")
	http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
}
