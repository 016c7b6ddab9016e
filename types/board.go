package types

// Board profile supplied on topic "config/board".

type BoardProfile struct {
	ScanHz uint32  `json:"scan_hz"`
	Mux    MuxPins `json:"mux"`
}

// MuxPins are the multiplexer select lines, LSB to MSB.
type MuxPins struct {
	A int `json:"a"`
	B int `json:"b"`
	C int `json:"c"`
}
