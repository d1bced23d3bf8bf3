// Package flock provides cross-platform advisory file locking.
//
// Exclusive and Unlock operate on raw descriptors and never block.
// File layers a context-aware, retrying acquisition on top of them and is
// what the checkpoint file store uses to serialize writers across processes:
//
//	lock := flock.New(path + ".lock")
//	if err := lock.Lock(ctx, 5*time.Second); err != nil {
//	    return err
//	}
//	defer func() { _ = lock.Unlock() }()
package flock
