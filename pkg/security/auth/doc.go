/*
Package auth provides caller key extraction and whitelist authorization for logpipe.

Every log stash operation carries a caller key. The key selects the scope
logs are stored under and is checked against a whitelist before the
operation runs.

# Basic Usage

	whitelist := auth.NewWhitelist([]string{"team-a-key", "team-b-key"})

	stash := logstash.New(store, logstash.WithAuthorizer(whitelist))

	middleware := auth.NewCallerKeyMiddleware(nil)
	http.Handle("/read", middleware.Handle(readHandler))

Inside a handler, the key is read back from the context:

	key := auth.CallerKey(r.Context())
	logs, err := stash.Get(r.Context(), filter, key)

# Whitelist Semantics

  - No keys, or a list containing "*": every caller is admitted, including
    callers without a key (they use the public scope).
  - Otherwise only listed keys are admitted. A request without a key is
    rejected.

Replace swaps the key set atomically; the config watcher uses it to apply
whitelist edits without a restart.

# Key Sources

The middleware tries sources in order and uses the first key found:

 1. Query parameter:
    ?authKey=team-a-key

 2. Custom header:
    X-Auth-Key: team-a-key

 3. Authorization header with Bearer scheme:
    Authorization: Bearer team-a-key

# Security Considerations

  - Key values are never logged in full (see RedactKey)
  - Use HTTPS in production to prevent key interception
  - Query parameter keys end up in proxy access logs; prefer headers
*/
package auth
