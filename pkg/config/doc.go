// Package config provides configuration types and loaders for the mock server.
//
// ServerConfiguration carries everything the listener bootstrap needs:
// ports, host, timeouts, TLS material, proxy settings and the optional
// expectation initialization file. Values come from, in increasing order of
// precedence, built-in defaults, a YAML config file, MOCKSERVER_* environment
// variables and command-line flags:
//
//	cfg := config.DefaultServerConfiguration()
//	if err := config.LoadServerConfigInto(path, cfg); err != nil {
//	    return err
//	}
//	config.Apply(v, cfg) // v is a viper instance set up by Bind
//
// Expectation files are JSON or YAML lists of expectations in the
// control-plane wire format. ${VAR} and ${VAR:-default} references are
// expanded before parsing.
package config
