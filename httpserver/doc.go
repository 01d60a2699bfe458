/*
Package httpserver runs the certificate trust API.

The server mounts the API routes next to the operational endpoints:

  - /livez: liveness, always 200
  - /readyz: 200 while ready, 503 while draining
  - /drain, /undrain: toggle readiness for load balancers
  - /debug/pprof: profiling, when enabled

Every API and health request is logged through the flashbots httplogger
middleware. Prometheus metrics are served by a separate listener on
MetricsAddr.

When an upload sweeper is given, staged uploads older than UploadMaxAge are
removed every UploadSweepInterval, so documents of issuances that were
prepared but never confirmed do not accumulate.

Usage:

	srv, err := httpserver.New(cfg, handler, uploads)
	if err != nil {
		return err
	}
	srv.RunInBackground()
	<-ctx.Done()
	srv.Shutdown()
*/
package httpserver
