// Package nmos holds the error taxonomy and HTTP transport shared by the
// registry client and the connection orchestrator.
//
// Every outbound call goes through Client, which applies a bounded
// per-request timeout and classifies failures:
//
//   - *UpstreamError: the registry or device answered with a non-2xx status
//   - *NetworkError: no response was received (timeout, refused, reset)
//   - ErrProtocol: a response or push message could not be decoded
//
// Callers match with errors.Is against the sentinels and errors.As against
// the structured types when they need the status or body:
//
//	var up *nmos.UpstreamError
//	if errors.As(err, &up) {
//	    log.Warn("device rejected patch", "status", up.Status)
//	}
package nmos
