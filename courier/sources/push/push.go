// Package push stands in for the platform push-messaging service: it owns
// the notification permission of each client installation and issues the
// registration token that addresses it.
package push

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Prompter shows the permission dialog and reports the user's answer.
type Prompter func(ctx context.Context) (bool, error)

// State persists permission and token per installation.
type State interface {
	Permission(ctx context.Context, installation string) (Permission, error)
	SetPermission(ctx context.Context, installation string, p Permission) error
	// IssueToken returns the installation's token, creating it on first use.
	IssueToken(ctx context.Context, installation string) (string, error)
}

type Platform struct {
	state        State
	installation string
	prompt       Prompter
	log          *zap.Logger
}

func NewPlatform(state State, installation string, prompt Prompter, log *zap.Logger) *Platform {
	return &Platform{state: state, installation: installation, prompt: prompt, log: log}
}

// RequestPermission prompts only while the permission is undecided; a
// recorded answer is returned as is.
func (p *Platform) RequestPermission(ctx context.Context) (Permission, error) {
	current, err := p.state.Permission(ctx, p.installation)
	if err != nil {
		return PermissionDefault, err
	}
	if current != PermissionDefault {
		return current, nil
	}
	if p.prompt == nil {
		return PermissionDefault, nil
	}
	ok, err := p.prompt(ctx)
	if err != nil {
		return PermissionDefault, fmt.Errorf("permission prompt: %w", err)
	}
	decided := PermissionDenied
	if ok {
		decided = PermissionGranted
	}
	if err := p.state.SetPermission(ctx, p.installation, decided); err != nil {
		return PermissionDefault, err
	}
	p.log.Debug("notification permission recorded", zap.String("installation", p.installation), zap.String("permission", string(decided)))
	return decided, nil
}

// Token returns "" without an error while permission is not granted.
func (p *Platform) Token(ctx context.Context) (string, error) {
	current, err := p.state.Permission(ctx, p.installation)
	if err != nil {
		return "", err
	}
	if current != PermissionGranted {
		return "", nil
	}
	return p.state.IssueToken(ctx, p.installation)
}
