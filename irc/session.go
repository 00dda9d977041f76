package irc

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// flushTimeout bounds how long a closing session waits on its peer
const flushTimeout = 5 * time.Second

// State is the registration state of a session
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateClosed
)

func (st State) String() string {
	switch st {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is the server side of one client connection
type Session struct {
	ID         string
	RemoteAddr string

	server *Server
	conn   net.Conn

	mu       sync.RWMutex
	nick     string
	ident    string
	host     string
	realname string
	state    State

	// guarded by server.registry.mu
	released bool

	queue      chan string
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// newSession creates a session for conn. conn may be nil for sessions that
// are driven through Handle and drained by the caller.
func newSession(server *Server, conn net.Conn) *Session {
	s := &Session{
		ID:         uuid.New().String(),
		server:     server,
		conn:       conn,
		queue:      make(chan string, server.config.Server.QueueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	if conn != nil {
		s.RemoteAddr = conn.RemoteAddr().String()
	}
	server.hooks.run(&Event{Kind: EventConnect, Session: s})
	return s
}

// Nick returns the current nickname, or "" before NICK
func (s *Session) Nick() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nick
}

func (s *Session) setNick(nick string) {
	s.mu.Lock()
	s.nick = nick
	s.mu.Unlock()
}

// Identity returns the values supplied with USER
func (s *Session) Identity() (ident, host, realname string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ident, s.host, s.realname
}

// State returns the session's registration state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done is closed once the session has ended
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send queues a formatted line without blocking. A full queue drops the
// line for this session only.
func (s *Session) Send(line string) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.queue <- line:
		s.server.metrics.LinesDelivered.Inc()
		return true
	default:
		s.server.metrics.LinesDropped.Inc()
		log.Printf("[%s] outbound queue full, dropping line for %s", s.ID, s.label())
		return false
	}
}

// reply sends payload to this session with its own nickname as prefix
func (s *Session) reply(payload string) {
	s.Send(s.server.router.Format(s.Nick(), payload))
}

// Serve runs the session until QUIT or a transport error
func (s *Session) Serve() {
	defer func() {
		s.close("Connection closed")
		<-s.writerDone
	}()

	go s.writeLoop()

	reader := textproto.NewReader(bufio.NewReader(s.conn))
	for {
		line, err := reader.ReadLine()
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Printf("[%s] Error reading from client: %v", s.label(), err)
			} else {
				log.Printf("[%s] Client disconnected", s.label())
			}
			return
		}

		s.Handle(line)
		if s.State() == StateClosed {
			return
		}
	}
}

// Handle interprets one decoded line. Lines naming an unknown command are
// dropped without reply.
func (s *Session) Handle(line string) {
	if s.State() == StateClosed {
		return
	}

	line = strings.TrimLeft(strings.TrimRight(line, "\r\n"), " \t")
	if s.server.config.Debug {
		log.Printf("[%s] <= %#v", s.label(), line)
	}

	keyword, args, _ := strings.Cut(line, " ")
	cmd, ok := LookupCommand(keyword)
	if !ok {
		return
	}

	s.server.hooks.run(&Event{Kind: EventCommand, Session: s, Command: cmd, Line: line})
	handlers[cmd](s, args)
}

// writeLoop drains the outbound queue onto the connection. After the
// session is closed it flushes what is still queued and closes conn.
func (s *Session) writeLoop() {
	defer close(s.writerDone)
	w := bufio.NewWriter(s.conn)

	for {
		select {
		case line := <-s.queue:
			if err := s.write(w, line); err != nil {
				log.Printf("[%s] Error writing to client: %v", s.label(), err)
				s.conn.Close()
				s.close("Write error")
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(flushTimeout))
			s.flush(w)
			s.conn.Close()
			return
		}
	}
}

func (s *Session) flush(w *bufio.Writer) {
	for {
		select {
		case line := <-s.queue:
			if err := s.write(w, line); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(w *bufio.Writer, line string) error {
	if s.server.config.Debug {
		log.Printf("[%s] => %#v", s.label(), line)
	}
	if _, err := w.WriteString(line); err != nil {
		return err
	}
	return w.Flush()
}

// close ends the session once: its registry entries are released and the
// writer is told to flush and hang up.
func (s *Session) close(reason string) {
	s.closeOnce.Do(func() {
		s.server.registry.Release(s)

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		close(s.done)
		s.server.hooks.run(&Event{Kind: EventDisconnect, Session: s, Reason: reason})
	})
}

func (s *Session) label() string {
	if nick := s.Nick(); nick != "" {
		return nick
	}
	if s.RemoteAddr != "" {
		return s.RemoteAddr
	}
	return s.ID
}
