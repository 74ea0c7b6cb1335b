// Package credential keeps the Glue Home API key the bridge authenticates with.
//
// A key configured directly is used as is. Otherwise the key is issued once
// from the account username and password and stored in SQLite keyed by
// username, so later starts reuse it without sending the password again.
package credential
