package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"courier/courier/sources/identity"
	"courier/courier/sources/psql/dao"
	"courier/courier/sources/psql/models"
	"courier/courier/types"

	"go.uber.org/zap"
)

var ErrInvalidUsername = errors.New("username is required")

// AuthController is the identity provider's login endpoint: it resolves a
// username to a user record and mints the session credential for it.
type AuthController struct {
	userDAO *dao.UserDAO
	tokens  *identity.Tokens
	log     *zap.Logger
}

func NewAuthController(userDAO *dao.UserDAO, tokens *identity.Tokens, log *zap.Logger) *AuthController {
	return &AuthController{userDAO: userDAO, tokens: tokens, log: log}
}

// Login finds or creates the user named in req. Profile fields in req
// overwrite the stored ones.
func (c *AuthController) Login(ctx context.Context, req types.LoginRequest) (*types.LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, ErrInvalidUsername
	}
	user, err := c.userDAO.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		displayName := username
		if req.DisplayName != nil && *req.DisplayName != "" {
			displayName = *req.DisplayName
		}
		user, err = c.userDAO.CreateUser(ctx, username, displayName, req.AvatarURL)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		c.log.Info("user created", zap.String("uid", user.ID), zap.String("username", username))
	} else if applyProfile(user, req.DisplayName, req.AvatarURL) {
		if err := c.userDAO.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	}

	token, principal, err := c.tokens.Mint(principalOf(user))
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}
	return &types.LoginResponse{Token: token, Principal: principal}, nil
}

func applyProfile(user *models.User, displayName, avatarURL *string) bool {
	changed := false
	if displayName != nil && *displayName != "" && *displayName != user.DisplayName {
		user.DisplayName = *displayName
		changed = true
	}
	if avatarURL != nil && (user.AvatarURL == nil || *user.AvatarURL != *avatarURL) {
		if *avatarURL == "" {
			user.AvatarURL = nil
		} else {
			v := *avatarURL
			user.AvatarURL = &v
		}
		changed = true
	}
	return changed
}

func principalOf(user *models.User) types.Principal {
	p := types.Principal{ID: user.ID, DisplayName: user.DisplayName}
	if user.AvatarURL != nil {
		p.AvatarURL = *user.AvatarURL
	}
	return p
}
