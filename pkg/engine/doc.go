// Package engine is the HTTP core of the mock server.
//
// Every request goes through the same two phases. The Handler first
// accumulates the whole body with a BodyAccumulator; a body that fails
// mid-transfer is never dispatched and the connection is dropped. The
// complete request is then handed to the Dispatcher, which picks exactly
// one branch from method and path alone:
//
//	PUT /stop       202, then graceful shutdown
//	PUT /dumpToLog  202, matching expectations logged
//	PUT /reset      202, all expectations removed
//	PUT /clear      202, matching expectations removed
//	PUT <other>     201, expectation registered
//	GET, POST       matched expectation, 404, or the proxy pipeline
//	anything else   405
//
// Server binds the plain, TLS and metrics listeners and runs them under
// one errgroup until Stop, PUT /stop, or cancellation of the start context.
//
// Basic usage:
//
//	cfg := config.DefaultServerConfiguration()
//	cfg.Port = 1080
//	srv, err := engine.NewServer(cfg, engine.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	if err := srv.Start(ctx); err != nil {
//		return err
//	}
//	return srv.Wait()
package engine
