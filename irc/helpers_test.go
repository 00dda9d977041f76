package irc

import (
	"strings"
	"testing"

	"github.com/lrstanley/girc"
	"github.com/presbrey/sircd/irc/config"
	"github.com/stretchr/testify/require"
)

func newTestConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	return cfg
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(newTestConfig())
}

// newTestSession returns a session with no connection; its output stays in
// the queue until drained.
func newTestSession(t *testing.T, srv *Server) *Session {
	t.Helper()
	return newSession(srv, nil)
}

// drain empties a session's outbound queue
func drain(s *Session) []string {
	var lines []string
	for {
		select {
		case line := <-s.queue:
			lines = append(lines, line)
		default:
			return lines
		}
	}
}

// login sends NICK and USER and discards the welcome
func login(t *testing.T, s *Session, nick, ident, realname string) {
	t.Helper()
	s.Handle("NICK " + nick)
	s.Handle("USER " + ident + " host * " + realname)
	require.Equal(t, nick, s.Nick())
	require.Equal(t, StateRegistered, s.State())
	drain(s)
}

// parseLine parses an outbound line with girc
func parseLine(t *testing.T, line string) *girc.Event {
	t.Helper()
	require.True(t, strings.HasSuffix(line, "\r\n"), "line must end with CRLF: %q", line)
	ev := girc.ParseEvent(strings.TrimSuffix(line, "\r\n"))
	require.NotNil(t, ev, "unparseable line %q", line)
	require.NotNil(t, ev.Source, "line without prefix %q", line)
	return ev
}
