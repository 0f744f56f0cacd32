// Package registration announces this service to an NMOS registry.
//
// The service registers one Node and one control Device through the
// Registration API and keeps them alive with periodic heartbeats:
//
//	POST <registration>/resource             {"type":"node","data":{...}}
//	POST <registration>/resource             {"type":"device","data":{...}}
//	POST <registration>/health/nodes/{id}    every heartbeat interval
//
// A heartbeat answered with 404 means the registry has expired the node;
// both resources are registered again. The Device advertises this
// service's connection API as an sr-ctrl control so that other
// controllers can find it.
//
// Registration is optional. When no registration URL is configured the
// caller simply does not construct a Service.
package registration
