// Package logging builds the process logger.
//
// Rampart logs through log/slog everywhere. This package turns the
// telemetry.logging configuration section into a *slog.Logger:
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//		return err
//	}
//	slog.SetDefault(logger)
//
// Components take a *slog.Logger and add a "component" attribute. Values of
// attributes whose key names a credential (token, password, secret,
// passphrase) are masked before they reach the output. Request IDs stored
// in a context with WithRequestID are added to records logged with the
// *Context methods.
package logging
