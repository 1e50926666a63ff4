// Package warden exposes the deduplication engine for services that file
// issues or alerts on their own and want the same at-most-once behavior.
//
// Quick start:
//
//	w, err := warden.New(warden.WithStore("redis", "redis://localhost:6379/0"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	if !w.SeenIssue(ctx, "shop", "api", "db-connection-refused") {
//	    ref := fileIssue()
//	    w.MarkIssue(ctx, "shop", "api", "db-connection-refused", ref)
//	}
//
// An unreachable store never blocks: Seen reports false and Mark is a no-op,
// so a failing store causes duplicates rather than missed alerts. A Warden is
// safe for concurrent use.
package warden
