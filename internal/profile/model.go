package profile

import (
	"errors"
	"time"

	"snapgram/internal/auth"
)

var ErrSelfFollow = errors.New("you cannot follow yourself")

// View is what other people see of an account: no email, no phone.
type View struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	FullName       string    `json:"fullName"`
	Avatar         string    `json:"avatar,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	Website        string    `json:"website,omitempty"`
	Location       string    `json:"location,omitempty"`
	IsPrivate      bool      `json:"isPrivate"`
	FollowersCount int       `json:"followersCount"`
	FollowingCount int       `json:"followingCount"`
	PostsCount     int       `json:"postsCount"`
	IsFollowing    bool      `json:"isFollowing"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newView(account auth.PublicAccount) View {
	return View{
		ID:        account.ID,
		Username:  account.Username,
		FullName:  account.FullName,
		Avatar:    account.Avatar,
		Bio:       account.Bio,
		Website:   account.Website,
		Location:  account.Location,
		IsPrivate: account.IsPrivate,
		CreatedAt: account.CreatedAt,
	}
}
