package controllers

import (
	"context"
	"errors"

	"courier/courier/sources/psql/dao"
	"courier/courier/sources/psql/models"
	"courier/courier/types"
)

var ErrUserNotFound = errors.New("user not found")

type UserController struct {
	dao *dao.UserDAO
}

func NewUserController(dao *dao.UserDAO) *UserController {
	return &UserController{dao: dao}
}

func (c *UserController) GetUser(ctx context.Context, id string) (*types.UserProfile, error) {
	user, err := c.dao.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return profileOf(user), nil
}

// UpdateProfile changes what later logins put into the principal. Tokens
// already issued keep the old values until they expire.
func (c *UserController) UpdateProfile(ctx context.Context, id string, req types.UpdateProfileRequest) (*types.UserProfile, error) {
	user, err := c.dao.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if applyProfile(user, req.DisplayName, req.AvatarURL) {
		if err := c.dao.UpdateUser(ctx, user); err != nil {
			return nil, err
		}
	}
	return profileOf(user), nil
}

func profileOf(user *models.User) *types.UserProfile {
	return &types.UserProfile{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
		CreatedAt:   user.CreatedAt,
	}
}
