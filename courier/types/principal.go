package types

import "time"

// Principal is the signed-in identity as reported by the identity provider.
// A session never mutates it; sign-in and sign-out replace it wholesale.
type Principal struct {
	ID          string    `json:"uid"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"photoUrl,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Valid reports whether the session backing p is still usable at now.
func (p *Principal) Valid(now time.Time) bool {
	if p == nil {
		return false
	}
	return p.ExpiresAt.IsZero() || now.Before(p.ExpiresAt)
}

type LoginRequest struct {
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	Principal Principal `json:"principal"`
}

type UserProfile struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}
