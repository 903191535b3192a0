package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	opSignIn  = "sign_in"
	opSignOut = "sign_out"
)

// SignIn runs the provider flow with the credential it produced. On success
// the caller is sent to the home view once the new principal is cached; on
// failure or cancellation it stays where it is.
func (g *Gateway) SignIn(ctx context.Context, credential string) {
	old := g.principal.Load()
	p, err := g.identity.SignIn(ctx, credential)
	if err != nil {
		g.fail(opSignIn, fmt.Errorf("sign in: %w", err))
		return
	}
	if p != old {
		g.awaitChange(ctx, old, p.ExpiresAt)
	}
	g.ok(opSignIn)
	g.log.Info("signed in", zap.String("uid", p.ID), zap.String("name", p.DisplayName))
	g.navigator.Navigate(ViewHome)
}

// SignOut ends the session and sends the caller to the login view.
func (g *Gateway) SignOut(ctx context.Context) {
	old := g.principal.Load()
	if err := g.identity.SignOut(ctx); err != nil {
		g.fail(opSignOut, fmt.Errorf("sign out: %w", err))
		return
	}
	if old != nil {
		g.awaitChange(ctx, old, time.Time{})
	}
	g.ok(opSignOut)
	g.navigator.Navigate(ViewLogin)
}
