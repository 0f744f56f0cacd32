// Package logging builds the log/slog logger used across Vega.
//
// Output is JSON unless logging.format is "text". Every entry carries
// service=vega and the build version. Attributes named password, token
// or *_token are redacted, and url / *_url string values are printed
// without userinfo, since registry and broker URLs may embed credentials.
//
//	logger := logging.New(cfg.Logging, version)
//	log := logger.With("component", "discovery")
//	log.Info("subscription open", "collection", "senders", "ws_url", href)
package logging
