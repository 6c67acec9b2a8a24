// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder on stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, WarnKV, etc.).
//
// The control loop and the CLI take the logger from their context so a
// single run can be scoped by session and device fields. The dosing core
// never logs.
package logger
