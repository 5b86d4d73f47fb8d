// Package config handles configuration loading for hivenode.
//
// # Overview
//
// Configuration is built in layers: built-in defaults, then an optional
// YAML file, then environment variables. The result is validated before use.
//
// # Environment Variable Expansion
//
// Values in the YAML file can reference environment variables:
//
//	auth:
//	  scent: "${HIVENODE_SCENT}"
//
// Unset variables expand to the empty string.
//
// # Environment Overrides
//
// These variables override the file when set and non-empty:
//
//	NODE_ID           node.id
//	CALLBACK_URL      node.callback_url
//	DISPATCH_URL      hive.url (RAILWAY_URL is accepted as an alias)
//	AUTH_URL          auth.url
//	SCENT             auth.scent
//	POLL_INTERVAL     hive.poll_interval, in whole seconds
//	HIVE_ENABLED      hive.enabled
//	HTTP_ADDR         server.http_addr
//	N8N_URL           tools.n8n_url
//	HIVENODE_DB_PATH  database.path
//	LOG_LEVEL         logging.level
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	hive:
//	  poll_interval: "5s"
//	  request_timeout: "10s"
//	  breaker_timeout: "30s"
//	  dedupe_window: "10m"
//	auth:
//	  token_validity: "1h"
//
// # Usage
//
//	cfg, err := config.Load("hivenode.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// An empty path skips the file and uses defaults plus environment.
package config
