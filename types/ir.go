package types

// ---- ir_remote device params (HALDevice.Params) ----

type IRParams struct {
	RxPin      int      `json:"rx_pin"`
	TxPin      int      `json:"tx_pin"`
	Modulation string   `json:"modulation,omitempty"` // "carrier" (default) or "soft"
	CarrierHz  uint32   `json:"carrier_hz,omitempty"`
	QuietMs    uint32   `json:"quiet_ms,omitempty"`
	SettleMs   uint32   `json:"settle_ms,omitempty"`
	Tolerance  *float32 `json:"tolerance,omitempty"` // percent; absent selects the default
	Store      string   `json:"store,omitempty"`     // "mem", "flash", "eeprom" or "file"
	StorePath  string   `json:"store_path,omitempty"`
	PollMs     uint32   `json:"poll_ms,omitempty"`
	SendGapMs  uint32   `json:"send_gap_ms,omitempty"`
	Domain     string   `json:"domain,omitempty"`
	Name       string   `json:"name,omitempty"`
}

type IRInfo struct {
	RxPin      int     `json:"rx_pin"`
	TxPin      int     `json:"tx_pin"`
	Modulation string  `json:"modulation"`
	CarrierHz  uint32  `json:"carrier_hz,omitempty"`
	Capacity   int     `json:"capacity"`
	MinSize    int     `json:"min_size"`
	Tolerance  float32 `json:"tolerance"`
	Store      string  `json:"store"`
}

// IRValue is the retained device summary.
type IRValue struct {
	State   string `json:"state"`
	Learned int    `json:"learned"`
	Pending string `json:"pending,omitempty"` // name awaiting a learn capture
}

// ---- Events ----

// IRCapture is published on event/rx for every accepted capture.
type IRCapture struct {
	Size       int      `json:"size"`
	DurationUs int64    `json:"duration_us"`
	Samples    []uint16 `json:"samples"`
	Match      string   `json:"match,omitempty"`
}

type IRMatch struct {
	Name string `json:"name"`
}

type IRLearned struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type IRSent struct {
	Name string `json:"name,omitempty"`
	Size int    `json:"size"`
}

type IRFailure struct {
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// ---- Controls ----

type IRLearn struct {
	Name      string `json:"name"`
	TimeoutMs uint32 `json:"timeout_ms,omitempty"` // 0 selects the default
}

// IRSend replays a learned signal by name, or raw samples when Name is empty.
type IRSend struct {
	Name    string   `json:"name,omitempty"`
	Samples []uint16 `json:"samples,omitempty"`
}

type IRForget struct {
	Name string `json:"name"`
}

type IRList struct {
	Names []string `json:"names"`
}
