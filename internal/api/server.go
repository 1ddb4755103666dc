package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"social-trading-agent/config"
	"social-trading-agent/internal/agent"
	"social-trading-agent/internal/crisis"
	"social-trading-agent/internal/events"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/research"
	"social-trading-agent/internal/state"
)

// Server is the HTTP control plane. Handlers mutate agent state only through
// agent.Do, so the single-writer property holds across the tick and the API.
type Server struct {
	agent     *agent.Agent
	llm       *research.Client
	brokerage providers.Brokerage
	crisisMon *crisis.Monitor
	secrets   config.Secrets
	cfg       config.ServerConfig
	bus       *events.Bus
	hub       *wsHub
	log       *logging.Logger
	httpSrv   *http.Server
}

func NewServer(a *agent.Agent, llm *research.Client, brokerage providers.Brokerage, crisisMon *crisis.Monitor, rt *config.Runtime, bus *events.Bus, log *logging.Logger) *Server {
	s := &Server{
		agent:     a,
		llm:       llm,
		brokerage: brokerage,
		crisisMon: crisisMon,
		secrets:   rt.Secrets,
		cfg:       rt.Server,
		bus:       bus,
		log:       log.WithComponent("api"),
	}
	s.hub = newWSHub(s.log)
	bus.SubscribeAll(s.hub.broadcast)
	registerMetricsSinks(bus)
	return s
}

// Router builds the gin engine with auth, CORS, and every route.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if s.cfg.AllowedOrigins == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = strings.Split(s.cfg.AllowedOrigins, ",")
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("/", s.authMiddleware)
	authed.GET("/status", s.handleStatus)
	authed.GET("/config", s.handleGetConfig)
	authed.POST("/config", s.handlePatchConfig)
	authed.POST("/enable", s.handleEnable)
	authed.POST("/disable", s.handleDisable)
	authed.POST("/dex/reset", s.handleDexReset)
	authed.POST("/dex/clear-cooldowns", s.handleDexClearCooldowns)
	authed.POST("/dex/clear-breaker", s.handleDexClearBreaker)
	authed.POST("/crisis/toggle", s.handleCrisisToggle)
	authed.POST("/crisis/check", s.handleCrisisCheck)
	authed.GET("/ws", s.handleWS)

	// The kill switch carries its own, stronger secret.
	r.POST("/kill", s.handleKill)

	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.log.Info("server_listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// authMiddleware checks the bearer token with a constant-time comparison.
func (s *Server) authMiddleware(c *gin.Context) {
	if s.cfg.APIToken == "" {
		fail(c, http.StatusServiceUnavailable, "api token not configured")
		c.Abort()
		return
	}
	got := bearerToken(c)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.APIToken)) != 1 {
		fail(c, http.StatusUnauthorized, "unauthorized")
		c.Abort()
		return
	}
	c.Next()
}

// killAuthorized checks the /kill secret against its bcrypt hash.
func (s *Server) killAuthorized(c *gin.Context) bool {
	if s.cfg.KillTokenHash == "" {
		return false
	}
	got := bearerToken(c)
	if got == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.cfg.KillTokenHash), []byte(got)) == nil
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return h[len(prefix):]
}

// Response envelope: {ok:true,data} on success, {ok:false,error} on failure.

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": data})
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"ok": false, "error": msg})
}

// reinitLLMIfChanged swaps the LLM client provider after a config patch that
// touched the selector.
func (s *Server) reinitLLMIfChanged(changed []string, st *state.AgentState) {
	for _, key := range changed {
		if key != "llm_provider" {
			continue
		}
		provider := research.Provider(st.Config.LLMProvider)
		var apiKey string
		switch provider {
		case research.ProviderAnthropic:
			apiKey = s.secrets.AnthropicKey
		case research.ProviderOpenAI:
			apiKey = s.secrets.OpenAIKey
		case research.ProviderDeepSeek:
			apiKey = s.secrets.DeepSeekKey
		}
		s.llm.SetProvider(provider, apiKey)
		s.log.Info("llm_provider_reinitialized", "provider", string(provider))
		return
	}
}
