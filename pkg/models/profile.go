package models

import "strings"

type AccountStatus string

const (
	AccountActive            AccountStatus = "active"
	AccountPendingActivation AccountStatus = "pending_activation"
	AccountDenied            AccountStatus = "denied"
)

// NormalizeStatus maps an unset status to active; profiles created before
// account approval existed carry none.
func NormalizeStatus(s AccountStatus) AccountStatus {
	v := AccountStatus(strings.ToLower(strings.TrimSpace(string(s))))
	if v == "" {
		return AccountActive
	}
	return v
}

type Profile struct {
	UID      string        `json:"uid,omitempty"`
	Username string        `json:"username"`
	Likes    []string      `json:"likes"`
	Dislikes []string      `json:"dislikes"`
	Status   AccountStatus `json:"status,omitempty"`
}

// ProfileUpdate is a partial profile write. Nil fields are not sent.
type ProfileUpdate struct {
	Username *string   `json:"username,omitempty"`
	Likes    *[]string `json:"likes,omitempty"`
	Dislikes *[]string `json:"dislikes,omitempty"`
}

func (u ProfileUpdate) Empty() bool {
	return u.Username == nil && u.Likes == nil && u.Dislikes == nil
}

// Apply merges u into p. Lists are replaced wholesale and deduplicated.
func (p Profile) Apply(u ProfileUpdate) Profile {
	out := p.Clone()
	if u.Username != nil {
		out.Username = *u.Username
	}
	if u.Likes != nil {
		out.Likes = Dedup(*u.Likes)
	}
	if u.Dislikes != nil {
		out.Dislikes = Dedup(*u.Dislikes)
	}
	return out
}

func (p Profile) Clone() Profile {
	out := p
	out.Likes = append([]string{}, p.Likes...)
	out.Dislikes = append([]string{}, p.Dislikes...)
	return out
}

// GuestProfile is the profile shown before anyone signs in.
func GuestProfile() Profile {
	return Profile{Username: "Guest", Likes: []string{}, Dislikes: []string{}}
}

// DefaultUsername derives a username from an email's local part.
func DefaultUsername(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return "AnimeFan"
	}
	return local
}

// Dedup trims entries and drops blanks and repeats, keeping first occurrence.
func Dedup(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
