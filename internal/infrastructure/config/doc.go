// Package config loads the Vega YAML configuration.
//
// Values are layered: Default, then the YAML file, then VEGA_* environment
// variables (VEGA_REGISTRY_QUERY_URL, VEGA_MQTT_PASSWORD, ...), and the
// result is checked by Validate. Secrets such as the broker password and
// the InfluxDB token belong in the environment rather than the file.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	client := nmos.NewClient(nmos.WithTimeout(cfg.RegistryTimeout()))
package config
