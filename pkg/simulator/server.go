package simulator

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Server exposes a Robot on a TCP listener and records every command line.
type Server struct {
	robot *Robot
	ln    net.Listener
	log   logrus.FieldLogger

	mu    sync.Mutex
	lines []string
	conns map[net.Conn]struct{}

	wg sync.WaitGroup
}

// Listen starts serving r on addr. Use "127.0.0.1:0" for an ephemeral port.
func Listen(addr string, r *Robot, log logrus.FieldLogger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	s := &Server{
		robot: r,
		ln:    ln,
		log:   log.WithField("component", "simulator"),
		conns: make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.accept()
	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Robot returns the simulated controller.
func (s *Server) Robot() *Robot { return s.robot }

// Lines returns a copy of every command line received so far.
func (s *Server) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Commands returns the received lines whose command name is name.
func (s *Server) Commands(name string) []string {
	var out []string
	for _, l := range s.Lines() {
		if f := strings.Fields(l); len(f) > 0 && f[0] == name {
			out = append(out, l)
		}
	}
	return out
}

// ResetLines clears the command log.
func (s *Server) ResetLines() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
}

// DropConnections closes every client socket, simulating a cable pull.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

// Close stops the listener and waits for open sessions to end.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
	return err
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.WithError(err).Warn("accept failed")
			}
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
		// The controller halts when its client goes away.
		s.robot.Halt()
	}()

	log := s.log.WithField("remote", conn.RemoteAddr().String())
	log.Info("client connected")

	rd := bufio.NewReader(conn)
	for {
		line, err := rd.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			s.mu.Lock()
			s.lines = append(s.lines, line)
			s.mu.Unlock()

			reply := s.robot.Handle(line)
			log.WithFields(logrus.Fields{"cmd": line, "reply": strings.TrimSpace(reply)}).Debug("handled")
			if reply != "" {
				if _, werr := io.WriteString(conn, reply); werr != nil {
					return
				}
			}
			if strings.EqualFold(line, "quit") {
				log.Info("client quit")
				return
			}
		}
		if err != nil {
			log.Info("client disconnected")
			return
		}
	}
}
