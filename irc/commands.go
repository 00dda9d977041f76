package irc

import (
	"errors"
	"fmt"
	"log"
	"strings"
)

// Command identifies one of the supported protocol commands
type Command int

const (
	CmdNick Command = iota + 1
	CmdUser
	CmdJoin
	CmdPrivmsg
	CmdWhois
	CmdPart
	CmdQuit
	CmdPing
	CmdWho
)

// Keywords are matched case-sensitively
var commandKeywords = map[string]Command{
	"NICK":    CmdNick,
	"USER":    CmdUser,
	"JOIN":    CmdJoin,
	"PRIVMSG": CmdPrivmsg,
	"WHOIS":   CmdWhois,
	"PART":    CmdPart,
	"QUIT":    CmdQuit,
	"PING":    CmdPing,
	"WHO":     CmdWho,
}

// LookupCommand parses a line's leading keyword
func LookupCommand(keyword string) (Command, bool) {
	cmd, ok := commandKeywords[keyword]
	return cmd, ok
}

func (c Command) String() string {
	for keyword, cmd := range commandKeywords {
		if cmd == c {
			return keyword
		}
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

type handlerFunc func(s *Session, args string)

// Dispatch table
var handlers = map[Command]handlerFunc{
	CmdNick:    handleNick,
	CmdUser:    handleUser,
	CmdJoin:    handleJoin,
	CmdPrivmsg: handlePrivmsg,
	CmdWhois:   handleWhois,
	CmdPart:    handlePart,
	CmdQuit:    handleQuit,
	CmdPing:    handlePing,
	CmdWho:     handleWho,
}

// handleNick registers or renames the session's nickname
func handleNick(s *Session, args string) {
	fields := strings.Fields(args)
	if len(fields) < 1 {
		return
	}
	newNick := strings.TrimPrefix(fields[0], ":")
	oldNick := s.Nick()

	err := s.server.registry.RegisterNick(newNick, s)
	switch {
	case errors.Is(err, ErrNicknameInUse):
		s.server.metrics.NickCollisions.Inc()
		s.reply(fmt.Sprintf("433 %s %s :Nickname is already in use", orStar(oldNick), newNick))
	case errors.Is(err, ErrErroneousNickname):
		s.reply(fmt.Sprintf("432 %s %s :Erroneous nickname", orStar(oldNick), newNick))
	case err != nil:
		return
	case oldNick != "" && oldNick != newNick:
		log.Printf("[%s] Nickname changed from %s to %s", s.ID, oldNick, newNick)
	}
}

// handleUser stores identity, host and display name: USER <ident> <host> * <realname...>
func handleUser(s *Session, args string) {
	nick := s.Nick()
	if nick == "" {
		return
	}

	fields := strings.Fields(args)
	if len(fields) < 4 {
		return
	}
	realname := strings.TrimPrefix(strings.Join(fields[3:], " "), ":")

	s.mu.Lock()
	s.ident = fields[0]
	s.host = fields[1]
	s.realname = realname
	s.state = StateRegistered
	s.mu.Unlock()

	s.reply(fmt.Sprintf("001 %s Welcome!", nick))
}

func handleJoin(s *Session, args string) {
	nick := s.Nick()
	fields := strings.Fields(args)
	if nick == "" || len(fields) < 1 {
		return
	}
	channel := NormalizeChannel(strings.TrimPrefix(fields[0], ":"))

	members, recipients, err := s.server.registry.JoinChannel(channel, nick)
	if err != nil {
		return
	}

	s.server.router.Deliver(s, recipients, "JOIN "+channel)
	s.reply(fmt.Sprintf("332 %s %s :", nick, channel))
	s.reply(fmt.Sprintf("353 %s = %s :%s", nick, channel, strings.Join(members, " ")))
	s.reply(fmt.Sprintf("366 %s %s :End of /NAMES list", nick, channel))
}

// handlePrivmsg sends everything after the target verbatim
func handlePrivmsg(s *Session, args string) {
	if s.Nick() == "" {
		return
	}

	target, text, _ := strings.Cut(args, " ")
	if target == "" {
		return
	}
	s.server.router.Send(s, ParseTarget(target), text)
}

func handleWhois(s *Session, args string) {
	fields := strings.Fields(args)
	if len(fields) < 1 {
		return
	}
	targetNick := fields[0]

	target, ok := s.server.registry.Lookup(targetNick)
	if !ok {
		s.reply(fmt.Sprintf("401 %s %s :No such nick/channel", orStar(s.Nick()), targetNick))
		return
	}

	ident, host, realname := target.Identity()
	s.reply(fmt.Sprintf("311 %s %s %s %s * :%s", orStar(s.Nick()), targetNick, ident, host, realname))
}

// handlePart leaves a channel. Without a reason the nickname is used.
func handlePart(s *Session, args string) {
	name, reason, found := strings.Cut(args, " ")
	if name == "" {
		return
	}
	nick := s.Nick()
	if !found {
		reason = nick
	}
	channel := NormalizeChannel(name)

	recipients, left := s.server.registry.LeaveChannel(channel, nick)
	if !left {
		return
	}
	payload := fmt.Sprintf("PART %s :%s", channel, strings.TrimPrefix(reason, ":"))
	s.server.router.Deliver(s, recipients, payload)
}

// handleQuit notifies every visible peer, then ends the session
func handleQuit(s *Session, args string) {
	reason := strings.TrimPrefix(args, ":")
	if reason == "" {
		reason = "Client Quit"
	}

	peers := s.server.registry.Release(s)
	s.server.router.Deliver(s, peers, "ERROR :"+reason)
	s.close(reason)
}

func handlePing(s *Session, args string) {
	if args == "" {
		s.reply("PONG")
		return
	}
	s.reply("PONG " + args)
}

func handleWho(s *Session, args string) {
	mask := strings.TrimSpace(args)
	if mask == "" {
		mask = "*"
	}
	s.reply(fmt.Sprintf("315 %s %s :End of WHO list", orStar(s.Nick()), mask))
}

func orStar(nick string) string {
	if nick == "" {
		return "*"
	}
	return nick
}
