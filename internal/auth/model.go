package auth

import "time"

type Account struct {
	ID                   string
	Email                string
	Username             string
	FullName             string
	Phone                string
	Bio                  string
	Website              string
	Location             string
	Avatar               string
	IsPrivate            bool
	PasswordHash         string
	FailedLoginAttempts  int
	LockUntil            *time.Time
	PasswordResetHash    string
	PasswordResetExpires *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsLocked reports whether the lockout window is still open at now.
func (a Account) IsLocked(now time.Time) bool {
	return a.LockUntil != nil && now.Before(*a.LockUntil)
}

// Public strips every secret field before the account leaves the service.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:        a.ID,
		Email:     a.Email,
		Username:  a.Username,
		FullName:  a.FullName,
		Phone:     a.Phone,
		Bio:       a.Bio,
		Website:   a.Website,
		Location:  a.Location,
		Avatar:    a.Avatar,
		IsPrivate: a.IsPrivate,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (a Account) Author() Author {
	return Author{ID: a.ID, Username: a.Username, FullName: a.FullName, Avatar: a.Avatar}
}

type PublicAccount struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FullName  string    `json:"fullName"`
	Phone     string    `json:"phone,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	Website   string    `json:"website,omitempty"`
	Location  string    `json:"location,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	IsPrivate bool      `json:"isPrivate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Author is the small public card other services embed for posts, comments
// and notifications.
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar,omitempty"`
}

type RefreshTokenRecord struct {
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type RegisterInput struct {
	Email           string
	FullName        string
	Username        string
	Password        string
	ConfirmPassword string
	Phone           string
}

type ProfileUpdate struct {
	FullName  *string
	Username  *string
	Bio       *string
	Phone     *string
	Website   *string
	Location  *string
	Avatar    *string
	IsPrivate *bool
}

type AuthResult struct {
	Account      PublicAccount
	AccessToken  string
	RefreshToken string
}

type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

type CleanupResult struct {
	DeletedRefreshTokens int64 `json:"deleted_refresh_tokens"`
	ClearedResetTokens   int64 `json:"cleared_reset_tokens"`
}
