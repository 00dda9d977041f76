package irc

import "strings"

// ChannelSigil marks a target specifier as a channel name
const ChannelSigil = "#"

type targetKind int

const (
	targetVisible targetKind = iota
	targetChannel
	targetNick
)

// Target is a resolved target specifier: a channel, a nickname, or every
// peer currently visible to the sender.
type Target struct {
	kind targetKind
	name string
}

// VisiblePeers addresses the union of all channels the sender is in
func VisiblePeers() Target {
	return Target{kind: targetVisible}
}

// ParseTarget classifies a target specifier by its leading sigil
func ParseTarget(spec string) Target {
	if strings.HasPrefix(spec, ChannelSigil) {
		return Target{kind: targetChannel, name: spec}
	}
	return Target{kind: targetNick, name: spec}
}

// NormalizeChannel prefixes the channel sigil when it is missing
func NormalizeChannel(name string) string {
	if strings.HasPrefix(name, ChannelSigil) {
		return name
	}
	return ChannelSigil + name
}

// Router decides which sessions receive an outbound line. It never mutates
// the registry.
type Router struct {
	registry *Registry
	origin   string
}

// NewRouter creates a router that stamps lines with origin as the host part
// of the sender prefix
func NewRouter(registry *Registry, origin string) *Router {
	return &Router{registry: registry, origin: origin}
}

// Resolve returns the sessions addressed by target on behalf of sender
func (r *Router) Resolve(sender string, target Target) []*Session {
	switch target.kind {
	case targetChannel:
		return r.registry.MemberSessions(target.name)
	case targetNick:
		if s, ok := r.registry.Lookup(target.name); ok {
			return []*Session{s}
		}
		return nil
	default:
		if sender == "" {
			return nil
		}
		return r.registry.VisibleSessions(sender)
	}
}

// Send resolves target and queues payload for every recipient. It returns
// the number of sessions that accepted the line.
func (r *Router) Send(sender *Session, target Target, payload string) int {
	return r.Deliver(sender, r.Resolve(sender.Nick(), target), payload)
}

// Deliver queues payload, prefixed with the sender, for each recipient
func (r *Router) Deliver(sender *Session, recipients []*Session, payload string) int {
	line := r.Format(sender.Nick(), payload)
	delivered := 0
	for _, s := range recipients {
		if s.Send(line) {
			delivered++
		}
	}
	return delivered
}

// Format builds ":<nick>!<origin> <payload>\r\n"
func (r *Router) Format(nick, payload string) string {
	if nick == "" {
		nick = "*"
	}

	var sb strings.Builder
	sb.WriteString(":")
	sb.WriteString(nick)
	sb.WriteString("!")
	sb.WriteString(r.origin)
	sb.WriteString(" ")
	sb.WriteString(payload)
	sb.WriteString("\r\n")
	return sb.String()
}
