// Package cloud is the client for the Glue Home user REST API.
//
// It covers the three resources the bridge needs:
//   - API keys: issued once from the account username/password (Basic auth)
//   - Locks: the lock directory with a snapshot of each lock's state
//   - Operations: lock/unlock commands and their asynchronous status
//
// Every call goes through Client.Do, which maps transport failures and HTTP
// status codes onto a small error taxonomy (see errors.go). The client never
// retries; retry policy belongs to the caller (the operation runner and the
// poll coordinator).
//
// Usage:
//
//	client := cloud.NewClient(cloud.Options{Host: cfg.GlueHome.Host})
//	locks, err := client.ListLocks(ctx, apiKey)
//	if errors.Is(err, cloud.ErrInvalidAuth) {
//	    // credential is dead, re-issue the API key
//	}
package cloud
