package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloakfinance/cloak"
	"github.com/cloakfinance/cloak/api/middleware"
	"github.com/cloakfinance/cloak/config"
	"github.com/cloakfinance/cloak/internal/apierror"
)

type Api struct {
	cloak  *cloak.Cloak
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/entries", a.CreateEntry)
	router.GET("/entries", a.GetAllEntries)
	router.GET("/entries/:id", a.GetEntry)
	router.GET("/entries/owner/:owner", a.GetEntryByOwner)
	router.POST("/entries/:id/pause", a.PauseEntry)
	router.POST("/entries/:id/resume", a.ResumeEntry)

	router.POST("/entries/:id/aggregation", a.BeginAggregation)
	router.POST("/entries/:id/threshold-check", a.BeginThresholdCheck)
	router.POST("/entries/:id/count-reveal", a.BeginCountReveal)

	router.GET("/entries/:id/referral-rewards/:referral", a.GetReferralReward)
	router.POST("/entries/:id/referral-rewards/:referral/collect", a.CollectReferralReward)

	router.POST("/transfers", a.RecordTransfer)
	router.POST("/transfers/confidential", a.RecordConfidentialTransfer)
	router.GET("/transfers", a.GetAllTransfers)
	router.GET("/transfers/:id", a.GetTransfer)
	router.GET("/transfers/nonce/:sender/:nonce", a.GetTransferBySenderNonce)

	router.POST("/transfers/:id/delegate", a.DelegateTransfer)
	router.POST("/transfers/:id/commit", a.CommitDelegation)
	router.POST("/transfers/:id/undelegate", a.UndelegateTransfer)
	router.POST("/transfers/:id/integrate", a.IntegrateTransfer)
	router.GET("/transfers/:id/delegation", a.GetDelegationState)

	router.POST("/compute/callback", a.ComputeCallback)
	router.GET("/computations/:id", a.GetComputation)

	router.POST("/balances", a.CreateBalance)
	router.GET("/balances/:id", a.GetBalance)

	return a.router
}

func NewAPI(c *cloak.Cloak) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{cloak: c, router: r}
}

// handleError maps domain errors onto HTTP status codes, so a replayed
// callback surfaces as 409 and a broken delegation precondition as 412.
func handleError(c *gin.Context, err error) {
	if apiErr, ok := err.(apierror.APIError); ok {
		c.JSON(apierror.MapErrorToHTTPStatus(err), apiErr)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
