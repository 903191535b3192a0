package gateway

import (
	"context"
	"fmt"

	"courier/courier/sources/push"
	"courier/courier/types"
	"courier/courier/utils/metrics"

	"go.uber.org/zap"
)

const (
	opRequestPermission = "request_notification_permission"
	opRegisterToken     = "register_device_token"
)

// RequestNotificationPermission asks for push permission. A denial is an
// ordinary outcome.
func (g *Gateway) RequestNotificationPermission(ctx context.Context) {
	perm, err := g.push.RequestPermission(ctx)
	if err != nil {
		g.fail(opRequestPermission, fmt.Errorf("request permission: %w", err))
		return
	}
	if perm == push.PermissionGranted {
		g.ok(opRequestPermission)
		g.log.Info("notification permission granted")
		return
	}
	g.metrics.Op(opRequestPermission, metrics.OutcomeDenied)
	g.log.Info("unable to get permission to notify", zap.String("permission", string(perm)))
}

// RegisterDeviceToken records this installation's push token against the
// current principal in the token registry.
func (g *Gateway) RegisterDeviceToken(ctx context.Context) {
	p := g.principal.Load()
	if p == nil {
		g.fail(opRegisterToken, ErrNoPrincipal)
		return
	}
	token, err := g.push.Token(ctx)
	if err != nil {
		g.fail(opRegisterToken, fmt.Errorf("get token: %w", err))
		return
	}
	if token == "" {
		g.fail(opRegisterToken, ErrNoToken)
		return
	}
	path := types.TokensCollection + "/" + token
	if err := g.documents.Set(ctx, path, map[string]any{types.FieldSenderID: p.ID}, true); err != nil {
		g.fail(opRegisterToken, fmt.Errorf("save token: %w", err))
		return
	}
	g.ok(opRegisterToken)
	g.log.Info("device token registered", zap.String("uid", p.ID))
}
