// Package mailer provides the [authflow.Notifier] implementations used by the
// server: SMTP delivery through gomail, and a zap-backed notifier for local
// development that logs messages instead of sending them.
package mailer
