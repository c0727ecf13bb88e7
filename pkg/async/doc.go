// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// Background work never crashes the process: panics are recovered and
// logged with their stack, errors are logged, and every task runs under a
// timeout derived from its parent context.
//
// # Key Functions
//
// SafeGo: fire-and-forget goroutine
//
//	async.SafeGo(ctx, logger, 30*time.Second, "config watcher", func(ctx context.Context) error {
//		return provider.Watch(ctx)
//	})
//
// Group: SafeGo tasks the owner can wait for on shutdown
//
//	group := async.NewGroup(logger, time.Minute)
//	group.Go(ctx, "analytics submission", trigger)
//	defer group.Close(shutdownCtx)
//
// # Related Packages
//
//   - pkg/analytics: submission triggers after each logged event
package async
