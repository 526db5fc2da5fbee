package realtime

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var socketIDPattern = regexp.MustCompile(`^\d+\.\d+$`)

// AuthResponse is returned to a client asking to join a private or presence channel.
type AuthResponse struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// PresenceMember identifies a presence channel subscriber.
type PresenceMember struct {
	UserID   string                 `json:"user_id"`
	UserInfo map[string]interface{} `json:"user_info,omitempty"`
}

// Authorizer signs channel subscriptions with the application secret.
type Authorizer struct {
	key    string
	secret []byte
}

// NewAuthorizer constructs an authorizer for the given app credentials.
func NewAuthorizer(key, secret string) *Authorizer {
	return &Authorizer{key: key, secret: []byte(secret)}
}

// AuthorizeChannel signs a private channel subscription for socketID.
func (a *Authorizer) AuthorizeChannel(socketID, channel string) (AuthResponse, error) {
	if err := a.validate(socketID, channel); err != nil {
		return AuthResponse{}, err
	}
	if IsPresence(channel) {
		return AuthResponse{}, fmt.Errorf("presence channel %s requires member data", channel)
	}
	return AuthResponse{Auth: a.sign(socketID + ":" + channel)}, nil
}

// AuthorizePresenceChannel signs a presence subscription carrying member data.
func (a *Authorizer) AuthorizePresenceChannel(socketID, channel string, member PresenceMember) (AuthResponse, error) {
	if err := a.validate(socketID, channel); err != nil {
		return AuthResponse{}, err
	}
	if !IsPresence(channel) {
		return AuthResponse{}, fmt.Errorf("channel %s is not a presence channel", channel)
	}
	if member.UserID == "" {
		return AuthResponse{}, fmt.Errorf("presence member requires user_id")
	}
	data, err := json.Marshal(member)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("encode channel data: %w", err)
	}
	channelData := string(data)
	return AuthResponse{
		Auth:        a.sign(socketID + ":" + channel + ":" + channelData),
		ChannelData: channelData,
	}, nil
}

// Verify checks a signature presented by a websocket client.
func (a *Authorizer) Verify(socketID, channel, auth, channelData string) bool {
	if !IsPrivate(channel) {
		return true
	}
	payload := socketID + ":" + channel
	if IsPresence(channel) {
		if channelData == "" {
			return false
		}
		payload += ":" + channelData
	}
	expected := a.sign(payload)
	return hmac.Equal([]byte(expected), []byte(auth))
}

func (a *Authorizer) validate(socketID, channel string) error {
	if len(a.secret) == 0 {
		return fmt.Errorf("realtime secret not configured")
	}
	if !socketIDPattern.MatchString(socketID) {
		return fmt.Errorf("invalid socket id %q", socketID)
	}
	if !ValidChannel(channel) {
		return fmt.Errorf("invalid channel name %q", channel)
	}
	if !IsPrivate(channel) {
		return fmt.Errorf("channel %s does not require authorization", channel)
	}
	return nil
}

func (a *Authorizer) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secret)
	_, _ = mac.Write([]byte(payload))
	return strings.Join([]string{a.key, hex.EncodeToString(mac.Sum(nil))}, ":")
}
