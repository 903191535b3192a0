package gateway

import (
	"errors"

	"courier/courier/utils/metrics"

	"go.uber.org/zap"
)

// Validation failures. They are logged, never returned.
var (
	ErrNoPrincipal  = errors.New("no signed-in principal")
	ErrEmptyMessage = errors.New("message needs text or an image")
	ErrNoFile       = errors.New("no file selected")
	ErrNoToken      = errors.New("no registration token available")
)

func isValidation(err error) bool {
	return errors.Is(err, ErrNoPrincipal) ||
		errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrNoFile) ||
		errors.Is(err, ErrNoToken)
}

// fail records a soft failure of op.
func (g *Gateway) fail(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	if isValidation(err) {
		g.metrics.Op(op, metrics.OutcomeValidation)
		g.log.Warn(op+" skipped", fields...)
		return
	}
	g.metrics.Op(op, metrics.OutcomeBackend)
	g.log.Error(op+" failed", fields...)
}

func (g *Gateway) ok(op string) {
	g.metrics.Op(op, metrics.OutcomeOK)
}
