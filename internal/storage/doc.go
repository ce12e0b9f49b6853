package storage

// Package storage persists destination configuration and sent-message
// bookkeeping in sqlite.
//
// Tables:
//   - alert/forecast/radar destination variants (who gets reported where)
//   - sent_alerts (at-most-once alert delivery ledger)
//   - volatile_messages (messages the sweeper deletes after expiry)
