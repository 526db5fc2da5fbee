package realtime

import (
	"fmt"
	"strings"
)

// Well-known channel names.
const (
	GlobalChannel        = "global"
	OnlineAgentsChannel  = "presence-online-agents"
	privatePrefix        = "private-"
	presencePrefix       = "presence-"
	maxChannelNameLength = 164
)

// UserChannel is the private channel of an agent or admin.
func UserChannel(userID string) string {
	return fmt.Sprintf("private-user-%s", userID)
}

// ClientChannel is the private channel of a customer.
func ClientChannel(clientID string) string {
	return fmt.Sprintf("private-client-%s", clientID)
}

// DepartmentChannel is shared by every agent in a department.
func DepartmentChannel(departmentID string) string {
	return fmt.Sprintf("private-department-%s", departmentID)
}

// IsPrivate reports whether subscribers must present a signature.
func IsPrivate(channel string) bool {
	return strings.HasPrefix(channel, privatePrefix) || IsPresence(channel)
}

// IsPresence reports whether the channel tracks member data.
func IsPresence(channel string) bool {
	return strings.HasPrefix(channel, presencePrefix)
}

// ValidChannel accepts the relay's channel alphabet.
func ValidChannel(channel string) bool {
	if channel == "" || len(channel) > maxChannelNameLength {
		return false
	}
	for _, r := range channel {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_=@,.;", r):
		default:
			return false
		}
	}
	return true
}
