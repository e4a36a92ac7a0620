package domain

// BlockingStrategy describes how a session may be started and released.
type BlockingStrategy struct {
	ID            string
	Name          string
	RequiresNFC   bool
	RequiresQR    bool
	RequiresTimer bool
	ManualStart   bool
}

// RequiresToken reports whether a physical token is part of the release rule.
func (s BlockingStrategy) RequiresToken() bool {
	return s.RequiresNFC || s.RequiresQR
}

// Accepts reports whether a scan from source satisfies the strategy.
func (s BlockingStrategy) Accepts(source TokenSource) bool {
	switch source {
	case SourceNFC:
		return s.RequiresNFC
	case SourceQR:
		return s.RequiresQR
	}
	return false
}

// Strategy ids.
const (
	StrategyNFC       = "nfc"
	StrategyQR        = "qr"
	StrategyManual    = "manual"
	StrategyNFCManual = "nfc_manual"
	StrategyQRManual  = "qr_manual"
	StrategyNFCTimer  = "nfc_timer"
	StrategyQRTimer   = "qr_timer"
)

var strategies = []BlockingStrategy{
	{ID: StrategyNFC, Name: "NFC Tags", RequiresNFC: true},
	{ID: StrategyQR, Name: "QR Codes", RequiresQR: true},
	{ID: StrategyManual, Name: "Manual", ManualStart: true},
	{ID: StrategyNFCManual, Name: "NFC + Manual", RequiresNFC: true, ManualStart: true},
	{ID: StrategyQRManual, Name: "QR + Manual", RequiresQR: true, ManualStart: true},
	{ID: StrategyNFCTimer, Name: "NFC + Timer", RequiresNFC: true, RequiresTimer: true},
	{ID: StrategyQRTimer, Name: "QR + Timer", RequiresQR: true, RequiresTimer: true},
}

// Strategies returns the closed table of blocking strategies.
func Strategies() []BlockingStrategy {
	out := make([]BlockingStrategy, len(strategies))
	copy(out, strategies)
	return out
}

// StrategyByID looks up a strategy. Unknown ids fall back to manual.
func StrategyByID(id string) BlockingStrategy {
	if s, ok := LookupStrategy(id); ok {
		return s
	}
	s, _ := LookupStrategy(StrategyManual)
	return s
}

// LookupStrategy returns the strategy with the given id, if any.
func LookupStrategy(id string) (BlockingStrategy, bool) {
	for _, s := range strategies {
		if s.ID == id {
			return s, true
		}
	}
	return BlockingStrategy{}, false
}
