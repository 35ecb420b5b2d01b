// Package securestore provides durable key/value storage shared between
// independent processes of the same user.
//
// Supports three storage backends with different security and deployment tradeoffs:
//   - File: One file per key with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - SQLite: Single database file, convenient when many processes poll the same records
//
// MemoryStore is an in-process implementation for tests.
//
// Every record is replaced atomically. There is no locking and no transaction
// spanning several keys: the last writer wins.
package securestore
