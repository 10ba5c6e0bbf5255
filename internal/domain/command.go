package domain

import (
	"strings"
	"time"
)

// CommandName identifies an inbound query.
type CommandName string

const (
	// CommandCheck asks for the current balance and the sweep history.
	CommandCheck CommandName = "check"
	// CommandStatus asks for addresses, start time and uptime.
	CommandStatus CommandName = "status"
)

// ParseCommandName maps "check", "/check" or "/check@botname" to a known command.
func ParseCommandName(s string) (CommandName, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "/")
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	switch CommandName(strings.ToLower(s)) {
	case CommandCheck:
		return CommandCheck, true
	case CommandStatus:
		return CommandStatus, true
	}
	return "", false
}

// Command is an authenticated inbound query emitted by a notifier.
type Command struct {
	Name       CommandName
	ChatID     int64
	ReceivedAt time.Time
}
