/*
Package httpserver exposes the access-key registry over HTTP.

Handler maps the routes documented in package api onto an interfaces.Registry,
extracting signed proofs from the X-Principal and X-Signature headers and
translating registry errors into status codes:

  - validation errors: 400
  - unauthorized: 401
  - not found: 404
  - not transferable, inactive or frozen, expired, account frozen,
    supply exhausted, already initialized: 409
  - anything else: 500

Server wraps the handler with access logging, health and drain endpoints,
optional pprof and an optional Prometheus metrics listener.

# Example Usage

	cfg := &api.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":8090",
		Log:                      logger,
		DrainDuration:            45 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
	}
	recorder := metrics.NewRecorder("accesskeys")
	srv, err := httpserver.New(cfg, httpserver.NewHandler(engine, recorder, logger), recorder)
	if err != nil {
		return err
	}
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package httpserver
