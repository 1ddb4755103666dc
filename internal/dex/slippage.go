package dex

// Slippage models the effective price impact of a swap as a fraction of
// price. Buy slippage raises the entry price, sell slippage lowers the exit
// price.
func Slippage(model string, positionUsd, liquidityUsd float64) float64 {
	if liquidityUsd <= 0 {
		liquidityUsd = 1
	}
	switch model {
	case "conservative":
		s := 0.005 + 2*positionUsd/liquidityUsd
		if s > 0.15 {
			s = 0.15
		}
		return s
	case "realistic":
		s := 0.01 + 5*positionUsd/liquidityUsd
		if s > 0.15 {
			s = 0.15
		}
		return s
	default: // none
		return 0
	}
}
