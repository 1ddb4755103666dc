package dex

import (
	"time"

	"social-trading-agent/config"
	"social-trading-agent/internal/state"
)

const cooldownMinElapsed = 5 * time.Minute

// cooldownVerdict says whether re-entry is allowed and why.
type cooldownVerdict struct {
	Allowed bool
	Reason  string
}

// checkCooldown applies the price-based re-entry gate for one candidate.
// Callers delete the cooldown entry when re-entry is allowed.
func checkCooldown(cd state.StopLossCooldown, sig *state.DexMomentumSignal, cfg *config.AgentConfig, now time.Time) cooldownVerdict {
	if cd.ExitPrice > 0 && sig.PriceUsd >= cd.ExitPrice*(1+cfg.DexReentryRecoveryPct/100) {
		return cooldownVerdict{Allowed: true, Reason: "cooldown_cleared_price_recovery"}
	}
	if sig.MomentumScore >= cfg.DexReentryMinMomentum && now.Sub(cd.ExitTime) >= cooldownMinElapsed {
		return cooldownVerdict{Allowed: true, Reason: "cooldown_cleared_momentum"}
	}
	if !cd.FallbackExpiry.IsZero() && !now.Before(cd.FallbackExpiry) {
		return cooldownVerdict{Allowed: true, Reason: "cooldown_expired"}
	}
	return cooldownVerdict{}
}

// pruneCooldowns drops records older than 24 h regardless of their fallback.
func pruneCooldowns(book *state.DexBook, now time.Time) {
	for token, cd := range book.StopLossCooldowns {
		if now.Sub(cd.ExitTime) > 24*time.Hour {
			delete(book.StopLossCooldowns, token)
		}
	}
}
