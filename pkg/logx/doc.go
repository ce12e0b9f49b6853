// Package logx configures weathergoat's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional chat-channel sink for error reporting (min-level + rate limiting)
package logx
