/*
Package irc implements sircd, a small multi-client chat server that speaks a
subset of the Internet Relay Chat wire protocol over one TCP port.

# Commands

	NICK <nick>                       register or change the nickname
	USER <ident> <host> * <realname>  store identity, reply with a welcome
	JOIN <#chan>                      join a channel, announce it to members
	PRIVMSG <target> <text>           send text to a nickname or channel
	WHOIS <nick>                      query a nickname's identity
	PART <chan> [reason]              leave a channel
	QUIT [reason]                     notify visible peers and disconnect
	PING                              reply PONG
	WHO                               stub reply

Any other keyword is ignored without a reply. Keywords are case-sensitive.

# Routing

Every outbound line has the form

	:<sender>!<server-name> <payload>\r\n

A target starting with "#" addresses a channel's members, anything else
addresses the session registered under that nickname. Quit notices go to
every member of every channel the sender is in. Unknown nicknames resolve
to nobody.

Channel names given to JOIN and PART without a leading "#" get one.

# Concurrency

Each connection runs in its own goroutine. The Registry is the only shared
state and guards nicknames and channel memberships with one lock. Outbound
lines go through a bounded per-session queue drained by a writer goroutine,
so a stalled client never blocks the sender; when the queue is full the line
is dropped for that client and counted in sircd_lines_dropped_total.

# Usage

	cfg, err := config.Load("sircd.yaml")
	if err != nil {
	    log.Fatalf("Failed to load config: %v", err)
	}

	server := irc.NewServer(cfg)
	if err := server.Start(); err != nil {
	    log.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()
*/
package irc
