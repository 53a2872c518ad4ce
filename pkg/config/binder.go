package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. MOCKSERVER_PORT.
const EnvPrefix = "MOCKSERVER"

// Flag names shared by the serve command and the environment.
const (
	FlagPort               = "port"
	FlagSecurePort         = "secure-port"
	FlagHost               = "host"
	FlagLogLevel           = "log-level"
	FlagLogFormat          = "log-format"
	FlagLogFile            = "log-file"
	FlagProxyTarget        = "proxy-target"
	FlagInitializationFile = "initialization-file"
	FlagWatch              = "watch"
	FlagMetricsPort        = "metrics-port"
	FlagKeyStoreDir        = "keystore-dir"
	FlagCertFile           = "cert-file"
	FlagKeyFile            = "key-file"
	FlagKeepAlive          = "keep-alive"
	FlagMaxBodySize        = "max-body-size"
	FlagShutdownTimeout    = "shutdown-timeout"
)

// RegisterFlags defines the server flags on fs with the built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultServerConfiguration()
	fs.Int(FlagPort, d.Port, "plain HTTP port (negative disables, 0 picks a free port)")
	fs.Int(FlagSecurePort, d.SecurePort, "TLS port (negative disables, 0 picks a free port)")
	fs.String(FlagHost, d.Host, "interface to bind")
	fs.String(FlagLogLevel, d.LogLevel, "log level (debug, info, warn, error, off)")
	fs.String(FlagLogFormat, d.LogFormat, "log format (text, json)")
	fs.String(FlagLogFile, "", "also write JSON logs to this file")
	fs.String(FlagProxyTarget, "", "forward the data plane to this upstream URL")
	fs.String(FlagInitializationFile, "", "JSON or YAML file of expectations to load at start")
	fs.Bool(FlagWatch, false, "reload the initialization file when it changes")
	fs.Int(FlagMetricsPort, d.MetricsPort, "Prometheus metrics port (negative disables)")
	fs.String(FlagKeyStoreDir, "", "directory for the generated self-signed certificate")
	fs.String(FlagCertFile, "", "TLS certificate file (reloaded on change)")
	fs.String(FlagKeyFile, "", "TLS private key file (reloaded on change)")
	fs.Bool(FlagKeepAlive, d.KeepAlive, "allow more than one request per connection")
	fs.Int64(FlagMaxBodySize, d.MaxBodySize, "maximum request body size in bytes")
	fs.Int(FlagShutdownTimeout, d.ShutdownTimeout, "seconds to wait for in-flight requests on stop")
}

// Bind connects the flags in fs to v and enables MOCKSERVER_* environment
// overrides. Dashes in flag names become underscores in variable names.
func Bind(v *viper.Viper, fs *pflag.FlagSet) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(fs)
}

// Apply copies every value explicitly set on v, by flag or environment,
// onto cfg. Values only present as flag defaults leave cfg untouched, so a
// config file loaded beforehand keeps precedence over defaults.
func Apply(v *viper.Viper, cfg *ServerConfiguration) {
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	setInt(FlagPort, &cfg.Port)
	setInt(FlagSecurePort, &cfg.SecurePort)
	setString(FlagHost, &cfg.Host)
	setString(FlagLogLevel, &cfg.LogLevel)
	setString(FlagLogFormat, &cfg.LogFormat)
	setString(FlagLogFile, &cfg.LogFile)
	setString(FlagProxyTarget, &cfg.Proxy.Target)
	setString(FlagInitializationFile, &cfg.InitializationFile)
	setBool(FlagWatch, &cfg.WatchInitialization)
	setInt(FlagMetricsPort, &cfg.MetricsPort)
	setString(FlagKeyStoreDir, &cfg.TLS.KeyStoreDir)
	setString(FlagCertFile, &cfg.TLS.CertFile)
	setString(FlagKeyFile, &cfg.TLS.KeyFile)
	setBool(FlagKeepAlive, &cfg.KeepAlive)
	setInt(FlagShutdownTimeout, &cfg.ShutdownTimeout)
	if v.IsSet(FlagMaxBodySize) {
		cfg.MaxBodySize = v.GetInt64(FlagMaxBodySize)
	}
}
