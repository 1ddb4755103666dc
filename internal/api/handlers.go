package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"social-trading-agent/config"
	"social-trading-agent/internal/dex"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/state"
)

const statusTailLen = 100

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// dexPositionView is an open paper position marked at the latest signal
// price.
type dexPositionView struct {
	state.DexPosition
	CurrentPrice    float64 `json:"current_price"`
	CurrentValueUsd float64 `json:"current_value_usd"`
	PlPct           float64 `json:"pl_pct"`
}

func (s *Server) handleStatus(c *gin.Context) {
	account, positions, clock := s.fetchBrokerage(c.Request.Context())

	var out gin.H
	s.agent.View(func(st *state.AgentState) {
		book := &st.Dex
		now := time.Now()

		positionsView := make([]dexPositionView, 0, len(book.Positions))
		priceOf := map[string]float64{}
		for i := range book.Signals {
			priceOf[book.Signals[i].TokenAddress] = book.Signals[i].PriceUsd
		}
		for _, pos := range book.Positions {
			price := pos.EntryPrice
			if p, ok := priceOf[pos.TokenAddress]; ok && p > 0 {
				price = p
			}
			pl := 0.0
			if pos.EntryPrice > 0 {
				pl = (price - pos.EntryPrice) / pos.EntryPrice * 100
			}
			positionsView = append(positionsView, dexPositionView{
				DexPosition:     *pos,
				CurrentPrice:    price,
				CurrentValueUsd: pos.TokenAmount * price,
				PlPct:           pl,
			})
		}

		totalValueSol := book.PaperBalanceSol
		if n := len(book.PortfolioHistory); n > 0 {
			totalValueSol = book.PortfolioHistory[n-1].TotalValueSol
		}
		metrics := dex.ComputeMetrics(book, totalValueSol, now.Before(book.CircuitBreakerUntil))

		out = gin.H{
			"enabled":           st.Enabled,
			"account":           account,
			"positions":         positions,
			"clock":             clock,
			"config":            st.Config,
			"signals":           tailSignals(st.SignalCache, statusTailLen),
			"logs":              tailLogs(st.Logs, statusTailLen),
			"cost_tracker":      st.Costs,
			"signal_research":   st.SignalResearch,
			"position_research": st.PositionResearch,
			"position_entries":  st.PositionEntries,
			"staleness":         st.Staleness,
			"twitter":           st.TwitterReads,
			"premarket_plan":    st.Plan,
			"dex": gin.H{
				"book":      book,
				"positions": positionsView,
				"metrics":   metrics,
			},
			"crisis_state": st.Crisis,
			"last_tick":    st.LastTick,
		}
	})
	ok(c, out)
}

// fetchBrokerage pulls the live account view, tolerating provider failures:
// the status page still renders with nil sections.
func (s *Server) fetchBrokerage(ctx context.Context) (*providers.Account, []providers.BrokeragePosition, *providers.Clock) {
	callCtx, cancel := context.WithTimeout(ctx, providers.CallTimeout)
	defer cancel()
	account, err := s.brokerage.GetAccount(callCtx)
	if err != nil {
		s.log.Debug("status_account_failed", "error", err.Error())
	}
	positions, err := s.brokerage.GetPositions(callCtx)
	if err != nil {
		s.log.Debug("status_positions_failed", "error", err.Error())
	}
	clock, err := s.brokerage.GetClock(callCtx)
	if err != nil {
		s.log.Debug("status_clock_failed", "error", err.Error())
	}
	return account, positions, clock
}

func tailSignals(signals []state.Signal, n int) []state.Signal {
	if len(signals) > n {
		return signals[:n]
	}
	return signals
}

func tailLogs(logs []state.LogEntry, n int) []state.LogEntry {
	if len(logs) > n {
		return logs[len(logs)-n:]
	}
	return logs
}

func (s *Server) handleGetConfig(c *gin.Context) {
	var cfg config.AgentConfig
	s.agent.View(func(st *state.AgentState) { cfg = st.Config })
	ok(c, cfg)
}

func (s *Server) handlePatchConfig(c *gin.Context) {
	var patch map[string]json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, "invalid json body")
		return
	}
	var changed []string
	var patchErr error
	s.agent.Do(c.Request.Context(), func(st *state.AgentState) {
		changed, patchErr = config.ApplyPatch(&st.Config, patch)
		if patchErr == nil {
			s.reinitLLMIfChanged(changed, st)
		}
	})
	if patchErr != nil {
		fail(c, http.StatusBadRequest, patchErr.Error())
		return
	}
	ok(c, gin.H{"changed": changed})
}

func (s *Server) handleEnable(c *gin.Context) {
	s.agent.Do(c.Request.Context(), func(st *state.AgentState) {
		st.Enabled = true
		st.AppendLog("info", "agent_enabled", nil)
	})
	ok(c, gin.H{"enabled": true})
}

// Disabling stops the loop's work but never closes positions.
func (s *Server) handleDisable(c *gin.Context) {
	s.agent.Do(c.Request.Context(), func(st *state.AgentState) {
		st.Enabled = false
		st.AppendLog("info", "agent_disabled", nil)
	})
	ok(c, gin.H{"enabled": false})
}

func (s *Server) handleDexReset(c *gin.Context) {
	s.agent.Do(c.Request.Context(), func(st *state.AgentState) {
		st.Dex = state.NewDexBook(st.Config.DexStartingBalanceSol)
		st.AppendLog("info", "dex_book_reset", map[string]interface{}{
			"starting_balance_sol": st.Config.DexStartingBalanceSol,
		})
	})
	ok(c, gin.H{"reset": true})
}

func (s *Server) handleDexClearCooldowns(c *gin.Context) {
	var cleared int
	s.agent.Do(c.Request.Context(), func(st *state.AgentState) {
		cleared = len(st.Dex.StopLossCooldowns)
		st.Dex.StopLossCooldowns = make(map[string]state.StopLossCooldown)
		st.AppendLog("info", "dex_cooldowns_cleared", map[string]interface{}{"count": cleared})
	})
	ok(c, gin.H{"cleared": cleared})
}

func (s *Server) handleDexClearBreaker(c *gin.Context) {
	s.agent.Do(c.Request.Context(), func(st *state.AgentState) {
		st.Dex.CircuitBreakerUntil = time.Time{}
		st.Dex.CircuitBreakerSince = time.Time{}
		st.Dex.RecentStopLosses = st.Dex.RecentStopLosses[:0]
		st.AppendLog("info", "dex_breaker_cleared_manual", nil)
	})
	ok(c, gin.H{"cleared": true})
}

type crisisToggleRequest struct {
	ManualOverride bool `json:"manual_override"`
	Level          *int `json:"level,omitempty"`
}

func (s *Server) handleCrisisToggle(c *gin.Context) {
	var req crisisToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Level != nil && (*req.Level < 0 || *req.Level > 3) {
		fail(c, http.StatusBadRequest, "level must be 0-3")
		return
	}
	var out gin.H
	s.agent.Do(c.Request.Context(), func(st *state.AgentState) {
		st.Crisis.ManualOverride = req.ManualOverride
		// Level may be forced only while the override is on.
		if req.ManualOverride && req.Level != nil {
			st.Crisis.Level = *req.Level
			st.Crisis.LastLevelChange = time.Now()
		}
		st.AppendLog("info", "crisis_override_toggled", map[string]interface{}{
			"manual_override": req.ManualOverride,
			"level":           st.Crisis.Level,
		})
		out = gin.H{"manual_override": st.Crisis.ManualOverride, "level": st.Crisis.Level}
	})
	ok(c, out)
}

func (s *Server) handleCrisisCheck(c *gin.Context) {
	var out gin.H
	var checkErr error
	s.agent.Do(c.Request.Context(), func(st *state.AgentState) {
		assessment, err := s.crisisMon.Check(c.Request.Context(), st)
		if err != nil {
			checkErr = err
			return
		}
		out = gin.H{
			"level":     assessment.Level,
			"score":     assessment.Score,
			"triggered": assessment.Triggered,
		}
	})
	if checkErr != nil {
		fail(c, http.StatusBadGateway, checkErr.Error())
		return
	}
	ok(c, out)
}

// handleKill disables the agent and clears the derived caches. Positions and
// the trade ledger are left alone.
func (s *Server) handleKill(c *gin.Context) {
	if !s.killAuthorized(c) {
		fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.agent.Do(c.Request.Context(), func(st *state.AgentState) {
		st.Enabled = false
		st.SignalCache = st.SignalCache[:0]
		st.Plan = nil
		st.AppendLog("error", "kill_switch_activated", nil)
	})
	s.bus.PublishKillSwitch()
	s.log.Error("kill_switch_activated")
	ok(c, gin.H{"killed": true})
}
