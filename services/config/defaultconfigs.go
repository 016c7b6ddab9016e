package config

// Board profiles compiled into the firmware image. Keys become retained
// config/<key> topics. Pin numbers are the mux select lines (LSB..MSB).
var embeddedConfigs = map[string][]byte{
	"sim": []byte(`{
		"board": {"scan_hz": 250, "mux": {"a": 2, "b": 3, "c": 4}},
		"heartbeat": {"interval": 1}
	}`),
	"rev1": []byte(`{
		"board": {"scan_hz": 250, "mux": {"a": 2, "b": 3, "c": 4}},
		"heartbeat": {"interval": 5}
	}`),
}
