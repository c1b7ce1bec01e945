// Package notify delivers one-time codes to user-controlled channels.
// Delivery is best effort: the engine treats the stored code as the
// source of truth, so a failed send never invalidates the code.
package notify

import "context"

// Notifier delivers a verification code out-of-band.
type Notifier interface {
	SendCode(ctx context.Context, email, code string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, email, code string) error

func (f NotifierFunc) SendCode(ctx context.Context, email, code string) error {
	return f(ctx, email, code)
}
