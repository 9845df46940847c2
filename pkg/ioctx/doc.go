// Package ioctx provides the execution contexts that own sessions.
//
// A Context runs posted tasks one at a time, in FIFO order, on a single
// goroutine. Everything that mutates a session happens inside a task on the
// session's Context, so session state needs no locking of its own. Code
// running on other goroutines never touches session state directly; it posts
// a task instead.
//
// A Pool groups several contexts and hands them out round-robin so that
// sessions accepted by one server are spread across goroutines.
//
//	pool := ioctx.NewPool(runtime.NumCPU())
//	pool.Start()
//	defer pool.Stop()
//
//	ctx := pool.Next()
//	ctx.Post(func() { /* runs on ctx's goroutine */ })
package ioctx
