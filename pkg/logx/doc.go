// Package logx configures steamwatch's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp + file:line caller)
//   - file output is JSON, one event per line
//   - an optional Telegram sink forwards warnings to an operator chat,
//     filtered by level and rate limited
//
// Service owns the sinks and can be reconfigured at runtime; loggers derived
// from it follow every Apply.
package logx
