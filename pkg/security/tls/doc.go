/*
Package tls terminates TLS for the logpipe server.

NewServerConfig turns the server.tls section of the configuration into a
crypto/tls configuration whose certificate comes from a CertificateReloader:

	tlsConfig, reloader, err := tls.NewServerConfig(cfg.Server.TLS)
	if err != nil {
		return err
	}
	if reloader != nil {
		_ = reloader.Start(ctx)
	}

The reloader polls the certificate and key files every reload_interval and
swaps in a new pair when either changes. A pair that fails to load or has
expired is rejected and the previous certificate stays in service.
*/
package tls
