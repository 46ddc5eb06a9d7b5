/*
Package security groups the access-control and transport pieces of logpipe.

# Caller Keys

Every request carries an optional caller key (X-Auth-Key header or authKey
query parameter). The key is both a credential and a scope: logs written
with a key are only visible to readers presenting the same key.

	whitelist := auth.NewWhitelist(cfg.Auth.Whitelist)
	stash := logstash.New(store, logstash.WithAuthorizer(whitelist))

	mw := auth.NewCallerKeyMiddleware(nil)
	http.Handle("/", mw.Handle(handler))

# TLS

	tlsConfig, reloader, err := tls.NewServerConfig(cfg.Server.TLS)
	if err != nil {
		return err
	}
	if err := reloader.Start(ctx); err != nil {
		return err
	}

# Secrets

Credentials in the configuration can be given as ${secret:name} references
and resolved from the environment or a secrets directory:

	mgr, err := secrets.FromConfig(cfg.Secrets)
	if err != nil {
		return err
	}
	err = mgr.ResolveConfig(ctx, cfg)
*/
package security
