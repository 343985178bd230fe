package config

// Embedded configuration, keyed by device ID (the value placed in ctx under
// CtxDeviceKey). Each top-level key becomes a retained config/<key> message.

const cfgPico = `{
  "hal": {
    "devices": [
      {
        "id": "ir0",
        "type": "ir_remote",
        "params": {
          "rx_pin": 15,
          "tx_pin": 14,
          "modulation": "carrier",
          "carrier_hz": 38000,
          "quiet_ms": 100,
          "settle_ms": 100,
          "tolerance": 50,
          "store": "flash"
        }
      }
    ]
  },
  "bridge": {
    "transport": {
      "type": "uart",
      "uart": {"uart": 1, "baud": 115200, "tx_pin": 4, "rx_pin": 5}
    },
    "events": ["rx", "match", "learned"]
  },
  "console": {
    "device": "ir0"
  }
}`

const cfgHost = `{
  "hal": {
    "devices": [
      {
        "id": "ir0",
        "type": "ir_remote",
        "params": {
          "rx_pin": 2,
          "tx_pin": 3,
          "modulation": "soft",
          "store": "file",
          "store_path": "irlearn.lfs"
        }
      }
    ]
  },
  "console": {
    "device": "ir0"
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"host": []byte(cfgHost),
}
