package domain

import "time"

// Profile definition user profile
type Profile struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

// ProfileView profile with derived presence
type ProfileView struct {
	Profile
	Online bool `json:"online"`
}

// ProfileQuery user directory filter
type ProfileQuery struct {
	ExcludeIDs []string
	// Search case-insensitive username substring
	Search string
	Limit  int
}

// IsOnline now - lastSeen < window; a user never seen is offline
func IsOnline(lastSeen *time.Time, now time.Time, window time.Duration) bool {
	if lastSeen == nil {
		return false
	}
	return now.Sub(*lastSeen) < window
}
