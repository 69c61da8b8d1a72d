// Package mailer is the outbound mail capability. The auth subsystem treats
// delivery as fire-and-forget: a Sender either sends a message or reports
// unavailability, and callers never assume delivery succeeded.
package mailer

import "context"

// Sender delivers account mail. Implementations must be safe for concurrent
// use.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
