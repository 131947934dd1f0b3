package sync

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	gosync "sync"
	"time"

	"github.com/goccy/go-json"

	"anipink/pkg/logging"
)

const authTimeout = 10 * time.Second

// TokenVerifier maps a bearer token to the account it belongs to.
type TokenVerifier func(token string) (uid string, err error)

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Server is the line-delimited JSON change feed over raw TCP. A client
// sends {"type":"auth","token":"..."} and then receives every change of
// that account, one event per line.
type Server struct {
	Addr   string
	Hub    *Hub
	Verify TokenVerifier

	mu    gosync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    gosync.WaitGroup
}

func NewServer(addr string, hub *Hub, verify TokenVerifier) *Server {
	return &Server{Addr: addr, Hub: hub, Verify: verify, conns: make(map[net.Conn]struct{})}
}

func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	log := logging.Component("tcp-sync")
	log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer s.track(c, false)
			s.handle(c)
		}(conn)
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
		return
	}
	delete(s.conns, c)
	_ = c.Close()
}

func (s *Server) handle(conn net.Conn) {
	log := logging.Component("tcp-sync")

	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var msg authMessage
	if err := json.Unmarshal(sc.Bytes(), &msg); err != nil || msg.Type != "auth" || msg.Token == "" {
		_, _ = conn.Write([]byte(`{"type":"error","message":"auth required"}` + "\n"))
		return
	}
	uid, err := s.Verify(msg.Token)
	if err != nil {
		_, _ = conn.Write([]byte(`{"type":"error","message":"invalid token"}` + "\n"))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	client := s.Hub.Register(uid, "", TransportTCP)
	defer s.Hub.Unregister(client)
	log.Info().Str("uid", uid).Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	welcome := fmt.Sprintf("{\"type\":\"welcome\",\"uid\":%q}\n", uid)
	if _, err := conn.Write([]byte(welcome)); err != nil {
		return
	}

	// consume anything the client sends so we notice the disconnect
	go func() {
		for sc.Scan() {
		}
		s.Hub.Unregister(client)
	}()

	w := bufio.NewWriter(conn)
	for msg := range client.Send() {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if _, err := w.Write(msg); err != nil {
			break
		}
		if err := w.Flush(); err != nil {
			break
		}
	}
	log.Info().Str("uid", uid).Str("remote", conn.RemoteAddr().String()).Msg("client disconnected")
}
