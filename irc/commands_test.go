package irc

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCommand(t *testing.T) {
	tests := []struct {
		keyword string
		cmd     Command
		ok      bool
	}{
		{"NICK", CmdNick, true},
		{"USER", CmdUser, true},
		{"JOIN", CmdJoin, true},
		{"PRIVMSG", CmdPrivmsg, true},
		{"WHOIS", CmdWhois, true},
		{"PART", CmdPart, true},
		{"QUIT", CmdQuit, true},
		{"PING", CmdPing, true},
		{"WHO", CmdWho, true},
		{"nick", 0, false},
		{"NOTICE", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			cmd, ok := LookupCommand(tt.keyword)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.cmd, cmd)
			if ok {
				assert.Equal(t, tt.keyword, cmd.String())
			}
		})
	}
}

func TestEveryCommandHasAHandler(t *testing.T) {
	for keyword, cmd := range commandKeywords {
		assert.NotNil(t, handlers[cmd], "no handler for %s", keyword)
	}
}

func TestUnknownCommandIsIgnored(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv)

	s.Handle("FOO this is ignored")
	s.Handle("nick lowercase")
	s.Handle("")

	assert.Empty(t, drain(s))
	assert.Empty(t, s.Nick())
	assert.Equal(t, StateUnregistered, s.State())
}

func TestNickAndUserWelcome(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv)

	s.Handle("NICK alice")
	assert.Empty(t, drain(s))

	s.Handle("USER a host * Alice Liddell\r\n")
	lines := drain(s)
	require.Len(t, lines, 1)
	assert.Equal(t, ":alice!sircd 001 alice Welcome!\r\n", lines[0])

	ident, host, realname := s.Identity()
	assert.Equal(t, "a", ident)
	assert.Equal(t, "host", host)
	assert.Equal(t, "Alice Liddell", realname)
	assert.Equal(t, StateRegistered, s.State())
}

func TestUserRequiresNick(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv)

	s.Handle("USER a host * Alice")
	assert.Empty(t, drain(s))
	assert.Equal(t, StateUnregistered, s.State())
	ident, _, _ := s.Identity()
	assert.Empty(t, ident)
}

func TestMalformedLinesLeaveStateUnchanged(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv)
	login(t, s, "alice", "a", "Alice")

	for _, line := range []string{
		"NICK",
		"USER only two",
		"JOIN",
		"PRIVMSG",
		"WHOIS",
		"PART",
	} {
		s.Handle(line)
	}

	assert.Empty(t, drain(s))
	assert.Equal(t, "alice", s.Nick())
	ident, host, realname := s.Identity()
	assert.Equal(t, []string{"a", "host", "Alice"}, []string{ident, host, realname})
	assert.Empty(t, srv.Registry().ChannelsContaining("alice"))
	assert.Equal(t, StateRegistered, s.State())
}

func TestNickCollisionIsRejected(t *testing.T) {
	srv := newTestServer(t)
	alice := newTestSession(t, srv)
	other := newTestSession(t, srv)
	login(t, alice, "alice", "a", "Alice")

	other.Handle("NICK alice")
	lines := drain(other)
	require.Len(t, lines, 1)
	assert.Equal(t, ":*!sircd 433 * alice :Nickname is already in use\r\n", lines[0])
	assert.Empty(t, other.Nick())

	got, ok := srv.Registry().Lookup("alice")
	require.True(t, ok)
	assert.Same(t, alice, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.Metrics().NickCollisions))
}

func TestNickRejectsChannelName(t *testing.T) {
	srv := newTestServer(t)
	alice := newTestSession(t, srv)
	other := newTestSession(t, srv)
	login(t, alice, "alice", "a", "Alice")

	other.Handle("NICK #bob")
	assert.Equal(t, []string{":*!sircd 432 * #bob :Erroneous nickname\r\n"}, drain(other))
	assert.Empty(t, other.Nick())
	_, ok := srv.Registry().Lookup("#bob")
	assert.False(t, ok)

	alice.Handle("NICK #alice")
	assert.Equal(t, []string{":alice!sircd 432 alice #alice :Erroneous nickname\r\n"}, drain(alice))
	assert.Equal(t, "alice", alice.Nick())
}

func TestNickAfterConcurrentClose(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv)

	// The session is closed after Handle's state check but before NICK runs
	srv.OnEvent(EventCommand, func(ev *Event) error {
		if ev.Session == s {
			ev.Session.close("Write error")
		}
		return nil
	})
	s.Handle("NICK ghost")

	assert.Equal(t, StateClosed, s.State())
	_, ok := srv.Registry().Lookup("ghost")
	assert.False(t, ok)

	// The name is free for someone else
	other := newTestSession(t, srv)
	other.Handle("NICK ghost")
	assert.Equal(t, "ghost", other.Nick())
}

func TestNickRename(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv)
	login(t, s, "alice", "a", "Alice")

	s.Handle("NICK alice2")

	_, ok := srv.Registry().Lookup("alice")
	assert.False(t, ok)
	got, ok := srv.Registry().Lookup("alice2")
	assert.True(t, ok)
	assert.Same(t, s, got)
}

func TestJoinReplies(t *testing.T) {
	srv := newTestServer(t)
	alice := newTestSession(t, srv)
	bob := newTestSession(t, srv)
	login(t, alice, "alice", "a", "Alice")
	login(t, bob, "bob", "b", "Bob")

	alice.Handle("JOIN #room")
	assert.Equal(t, []string{
		":alice!sircd JOIN #room\r\n",
		":alice!sircd 332 alice #room :\r\n",
		":alice!sircd 353 alice = #room :alice\r\n",
		":alice!sircd 366 alice #room :End of /NAMES list\r\n",
	}, drain(alice))

	bob.Handle("JOIN room")
	assert.Equal(t, []string{":bob!sircd JOIN #room\r\n"}, drain(alice))

	lines := drain(bob)
	require.Len(t, lines, 4)
	assert.Equal(t, ":bob!sircd JOIN #room\r\n", lines[0])
	assert.Equal(t, ":bob!sircd 353 bob = #room :alice bob\r\n", lines[2])

	assert.Equal(t, []string{"alice", "bob"}, srv.Registry().MembersOf("#room"))
}

func TestJoinRequiresNick(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv)

	s.Handle("JOIN #room")
	assert.Empty(t, drain(s))
	assert.Empty(t, srv.Registry().MembersOf("#room"))
}

func TestPrivmsgToNick(t *testing.T) {
	srv := newTestServer(t)
	alice := newTestSession(t, srv)
	bob := newTestSession(t, srv)
	login(t, alice, "alice", "a", "Alice")
	login(t, bob, "bob", "b", "Bob")

	alice.Handle("PRIVMSG bob hello bob")
	lines := drain(bob)
	require.Len(t, lines, 1)
	ev := parseLine(t, lines[0])
	assert.Equal(t, "alice", ev.Source.Name)
	assert.Equal(t, "sircd", ev.Source.Ident)
	assert.True(t, strings.HasSuffix(lines[0], " hello bob\r\n"))

	// Unknown recipients are silently dropped
	alice.Handle("PRIVMSG nobody hello?")
	assert.Empty(t, drain(alice))
	assert.Empty(t, drain(bob))
	assert.NotEqual(t, StateClosed, alice.State())
}

func TestPrivmsgWithoutText(t *testing.T) {
	srv := newTestServer(t)
	alice := newTestSession(t, srv)
	bob := newTestSession(t, srv)
	login(t, alice, "alice", "a", "Alice")
	login(t, bob, "bob", "b", "Bob")

	alice.Handle("PRIVMSG bob")
	assert.Equal(t, []string{":alice!sircd \r\n"}, drain(bob))
}

func TestPrivmsgRequiresNick(t *testing.T) {
	srv := newTestServer(t)
	anon := newTestSession(t, srv)
	bob := newTestSession(t, srv)
	login(t, bob, "bob", "b", "Bob")

	anon.Handle("PRIVMSG bob hi")
	assert.Empty(t, drain(bob))
}

func TestPrivmsgToChannel(t *testing.T) {
	srv := newTestServer(t)
	alice := newTestSession(t, srv)
	bob := newTestSession(t, srv)
	carol := newTestSession(t, srv)
	login(t, alice, "alice", "a", "Alice")
	login(t, bob, "bob", "b", "Bob")
	login(t, carol, "carol", "c", "Carol")

	alice.Handle("JOIN #room")
	bob.Handle("JOIN #room")
	drain(alice)
	drain(bob)

	alice.Handle("PRIVMSG #room hi")
	assert.Equal(t, []string{":alice!sircd hi\r\n"}, drain(bob))
	assert.Equal(t, []string{":alice!sircd hi\r\n"}, drain(alice))
	assert.Empty(t, drain(carol))

	// Membership is not required to speak in a channel
	carol.Handle("PRIVMSG #room from outside")
	assert.Equal(t, []string{":carol!sircd from outside\r\n"}, drain(alice))
	assert.Equal(t, []string{":carol!sircd from outside\r\n"}, drain(bob))
	assert.Empty(t, drain(carol))
}

func TestWhois(t *testing.T) {
	srv := newTestServer(t)
	alice := newTestSession(t, srv)
	bob := newTestSession(t, srv)
	login(t, alice, "alice", "a", "Alice")
	login(t, bob, "bob", "b", "Bob")

	alice.Handle("WHOIS bob")
	lines := drain(alice)
	require.Len(t, lines, 1)
	assert.Equal(t, ":alice!sircd 311 alice bob b host * :Bob\r\n", lines[0])
	for _, want := range []string{"bob", " b ", "host", "Bob"} {
		assert.Contains(t, lines[0], want)
	}

	alice.Handle("WHOIS nobody")
	assert.Equal(t, []string{":alice!sircd 401 alice nobody :No such nick/channel\r\n"}, drain(alice))
	assert.Empty(t, drain(bob))
}

func TestPart(t *testing.T) {
	srv := newTestServer(t)
	alice := newTestSession(t, srv)
	bob := newTestSession(t, srv)
	login(t, alice, "alice", "a", "Alice")
	login(t, bob, "bob", "b", "Bob")

	alice.Handle("JOIN #room")
	bob.Handle("JOIN #room")
	drain(alice)
	drain(bob)

	alice.Handle("PART #room see you")
	assert.Equal(t, []string{":alice!sircd PART #room :see you\r\n"}, drain(bob))
	assert.Equal(t, []string{":alice!sircd PART #room :see you\r\n"}, drain(alice))
	assert.Equal(t, []string{"bob"}, srv.Registry().MembersOf("#room"))

	// A second PART is a no-op
	alice.Handle("PART #room")
	assert.Empty(t, drain(alice))
	assert.Empty(t, drain(bob))
}

func TestPartDefaultsReasonToNick(t *testing.T) {
	srv := newTestServer(t)
	bob := newTestSession(t, srv)
	login(t, bob, "bob", "b", "Bob")

	bob.Handle("JOIN #room")
	drain(bob)

	bob.Handle("PART room")
	assert.Equal(t, []string{":bob!sircd PART #room :bob\r\n"}, drain(bob))
	assert.Empty(t, srv.Registry().MembersOf("#room"))
}

func TestPartWhenNotJoined(t *testing.T) {
	srv := newTestServer(t)
	alice := newTestSession(t, srv)
	bob := newTestSession(t, srv)
	login(t, alice, "alice", "a", "Alice")
	login(t, bob, "bob", "b", "Bob")
	bob.Handle("JOIN #room")
	drain(bob)

	alice.Handle("PART room")
	assert.Empty(t, drain(alice))
	assert.Empty(t, drain(bob))
	assert.Equal(t, StateRegistered, alice.State())

	// The session keeps working afterwards
	alice.Handle("PING")
	assert.Equal(t, []string{":alice!sircd PONG\r\n"}, drain(alice))
}

func TestQuit(t *testing.T) {
	srv := newTestServer(t)
	alice := newTestSession(t, srv)
	bob := newTestSession(t, srv)
	carol := newTestSession(t, srv)
	login(t, alice, "alice", "a", "Alice")
	login(t, bob, "bob", "b", "Bob")
	login(t, carol, "carol", "c", "Carol")

	alice.Handle("JOIN #a")
	bob.Handle("JOIN #a")
	alice.Handle("JOIN #b")
	carol.Handle("JOIN #c")
	drain(alice)
	drain(bob)
	drain(carol)

	alice.Handle("QUIT :gone fishing")

	assert.Equal(t, []string{":alice!sircd ERROR :gone fishing\r\n"}, drain(bob))
	assert.Equal(t, []string{":alice!sircd ERROR :gone fishing\r\n"}, drain(alice))
	assert.Empty(t, drain(carol))

	assert.Equal(t, StateClosed, alice.State())
	select {
	case <-alice.Done():
	default:
		t.Fatal("session should be done after QUIT")
	}

	reg := srv.Registry()
	_, ok := reg.Lookup("alice")
	assert.False(t, ok)
	for channel, members := range reg.Snapshot() {
		assert.NotContains(t, members, "alice", "alice still in %s", channel)
	}

	// Nothing is processed after QUIT
	alice.Handle("NICK zombie")
	_, ok = reg.Lookup("zombie")
	assert.False(t, ok)

	// A later JOIN does not reveal the departed nickname
	carol.Handle("JOIN #a")
	lines := drain(carol)
	require.Len(t, lines, 4)
	assert.Equal(t, ":carol!sircd 353 carol = #a :bob carol\r\n", lines[2])
}

func TestQuitDefaultReason(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv)
	login(t, s, "alice", "a", "Alice")
	s.Handle("JOIN #room")
	drain(s)

	s.Handle("QUIT")
	assert.Equal(t, []string{":alice!sircd ERROR :Client Quit\r\n"}, drain(s))
}

func TestPingAndWho(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv)

	s.Handle("PING")
	assert.Equal(t, []string{":*!sircd PONG\r\n"}, drain(s))

	login(t, s, "alice", "a", "Alice")
	s.Handle("PING :token")
	assert.Equal(t, []string{":alice!sircd PONG :token\r\n"}, drain(s))

	s.Handle("WHO")
	assert.Equal(t, []string{":alice!sircd 315 alice * :End of WHO list\r\n"}, drain(s))

	s.Handle("WHO #room")
	assert.Equal(t, []string{":alice!sircd 315 alice #room :End of WHO list\r\n"}, drain(s))
}

func TestWhoisIsNotWho(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv)
	login(t, s, "alice", "a", "Alice")

	s.Handle("WHOIS alice")
	lines := drain(s)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], " 311 ")
}

func TestScenarioChannelConversation(t *testing.T) {
	srv := newTestServer(t)
	a := newTestSession(t, srv)
	b := newTestSession(t, srv)

	a.Handle("NICK alice")
	a.Handle("USER a host * Alice")
	b.Handle("NICK bob")
	b.Handle("USER b host * Bob")
	a.Handle("JOIN #room")
	b.Handle("JOIN #room")
	drain(a)
	drain(b)

	a.Handle("PRIVMSG #room hi")
	lines := drain(b)
	require.Len(t, lines, 1)
	ev := parseLine(t, lines[0])
	assert.Equal(t, "alice", ev.Source.Name)
	assert.Contains(t, lines[0], "hi")
}
