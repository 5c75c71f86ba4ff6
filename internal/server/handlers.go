package server

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gamepay/procadmin/internal/identity"
	"github.com/gamepay/procadmin/internal/logging"
	"github.com/gamepay/procadmin/internal/processor"
	"github.com/gamepay/procadmin/internal/validation"
)

// User-facing failure messages. Contract and database details stay in the
// server log; the dashboard only needs to know which operation failed and,
// for catalog writes, whether the transaction ever left this server.
const (
	msgNoLoginDetails     = "Please provide a username and password."
	msgUnableToLogin      = "Unable to log in with the provided credentials."
	msgStateUnavailable   = "Unable to retrieve the payment processor state."
	msgCatalogUnavailable = "Unable to retrieve the service catalog."
	msgLookupFailed       = "Unable to look up the address."

	msgAddServiceNotSent     = "Unable to add the service. The transaction was never submitted, so it is safe to retry."
	msgAddServiceUnconfirmed = "Unable to add the service. Transaction %s was submitted but not confirmed; inspect it on chain before retrying."
	msgUpdateNotSent         = "Unable to update the service. The transaction was never submitted, so it is safe to retry."
	msgUpdateUnconfirmed     = "Unable to update the service. Transaction %s was submitted but not confirmed; inspect it on chain before retrying."
)

// writeFailureMessage picks the envelope message for a failed catalog write.
// A submission failure is retryable; a confirmation failure left a transaction
// on the wire and the operator must check it before acting again.
func writeFailureMessage(notSent, unconfirmed string, err error) string {
	var confirmErr *processor.ConfirmError
	if errors.As(err, &confirmErr) {
		return fmt.Sprintf(unconfirmed, confirmErr.TxHash)
	}
	return notSent
}

func errorEnvelope(c *gin.Context, message string) {
	// Operation failures are application state, not transport errors; the
	// dashboard reads the envelope, so these always travel as HTTP 200.
	c.JSON(http.StatusOK, gin.H{
		"status":  "ERROR",
		"message": message,
	})
}

// -----------------------------------------------------------------------------
// Session handlers
// -----------------------------------------------------------------------------

// dashboardHandler serves GET /. It evaluates the session itself rather than
// through the gate middleware: a visitor without a session is a normal state
// here and gets the login view, not a rejection.
func (s *Server) dashboardHandler(c *gin.Context) {
	ctx := c.Request.Context()

	token, _ := c.Cookie(identity.SessionCookie)
	profile, outcome, _ := s.gate.Authorize(ctx, token)
	if outcome != identity.OutcomeAdmin {
		c.JSON(http.StatusOK, identity.LoginView(outcome, s.cfg.ApplicationName))
		return
	}

	view := gin.H{
		"status":          "SUCCESS",
		"authenticated":   true,
		"view":            "dashboard",
		"applicationName": s.cfg.ApplicationName,
		"gameProfileUri":  s.cfg.IdentityProfileURL,
		"username":        profile.Username,
	}

	// Pending order count is advisory on the landing page; the page still
	// renders when the store is briefly unavailable.
	if pending, err := s.orders.ListPending(ctx); err == nil {
		view["pendingOrders"] = len(pending)
	} else {
		logging.Op(ctx, "dashboard", "orders").Warn("pending order count unavailable", "error", err)
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) loginHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		Username string `form:"username" json:"username"`
		Password string `form:"password" json:"password"`
	}
	_ = c.ShouldBind(&req)

	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusOK, gin.H{
			"status":          "ERROR",
			"authenticated":   false,
			"view":            "login",
			"reason":          msgNoLoginDetails,
			"applicationName": s.cfg.ApplicationName,
		})
		return
	}

	token, err := s.idClient.Login(ctx, req.Username, req.Password)
	if err != nil {
		logging.Op(ctx, "login", "identity").Warn("login rejected",
			"username", req.Username,
			"error", err,
		)
		c.JSON(http.StatusOK, gin.H{
			"status":          "ERROR",
			"authenticated":   false,
			"view":            "login",
			"reason":          msgUnableToLogin,
			"applicationName": s.cfg.ApplicationName,
		})
		return
	}

	// The game client reads this cookie too, so it stays accessible to
	// scripts. Expiry is fixed; the token's own exp governs validity.
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(identity.SessionCookie, token, identity.SessionCookieMaxAge, "/", "", false, false)
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) logoutHandler(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(identity.SessionCookie, "", -1, "/", "", false, false)
	c.Redirect(http.StatusFound, "/")
}

// -----------------------------------------------------------------------------
// Contract handlers
// -----------------------------------------------------------------------------

func (s *Server) getStateHandler(c *gin.Context) {
	ctx := c.Request.Context()

	state, err := s.contract.Snapshot(ctx)
	if err != nil {
		logging.Op(ctx, "get-state", "processor").Error("state snapshot failed", "error", err)
		errorEnvelope(c, msgStateUnavailable)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "SUCCESS",
		"name":           state.Name,
		"firstParty":     state.FirstParty,
		"secondParty":    state.SecondParty,
		"nextServiceId":  state.NextServiceID,
		"firstPartyPot":  state.FirstPartyPot,
		"secondPartyPot": state.SecondPartyPot,
	})
}

func (s *Server) getServicesHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		NextServiceID uint64 `json:"nextServiceId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorEnvelope(c, "nextServiceId must be a non-negative integer")
		return
	}

	services, err := s.contract.Services(ctx, req.NextServiceID)
	if err != nil {
		logging.Op(ctx, "get-services", "processor").Error("catalog read failed",
			"count", req.NextServiceID,
			"error", err,
		)
		errorEnvelope(c, msgCatalogUnavailable)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "SUCCESS",
		"services": services,
	})
}

func (s *Server) addServiceHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		ServiceName string `json:"serviceName"`
		ServiceCost string `json:"serviceCost"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorEnvelope(c, "request body must be valid JSON")
		return
	}

	req.ServiceName = validation.SanitizeString(req.ServiceName, 200)
	if errs := validation.Validate(
		validation.Required("serviceName", req.ServiceName),
		validation.Required("serviceCost", req.ServiceCost),
		validation.ValidUint("serviceCost", req.ServiceCost),
	); len(errs) > 0 {
		errorEnvelope(c, errs.Error())
		return
	}

	cost, _ := new(big.Int).SetString(req.ServiceCost, 10)

	result, err := s.contract.AddService(ctx, req.ServiceName, cost)
	if err != nil {
		logging.Op(ctx, "add-service", "processor").Error("add service failed",
			"name", req.ServiceName,
			"error", err,
		)
		errorEnvelope(c, writeFailureMessage(msgAddServiceNotSent, msgAddServiceUnconfirmed, err))
		return
	}

	s.hub.BroadcastServiceAdded(req.ServiceName, cost.String(), result.TxHash)

	c.JSON(http.StatusOK, gin.H{
		"status": "SUCCESS",
		"txHash": result.TxHash,
	})
}

func (s *Server) updateServiceHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		ServiceID      uint64 `json:"serviceId"`
		ServiceName    string `json:"serviceName"`
		ServiceCost    string `json:"serviceCost"`
		ServiceEnabled bool   `json:"serviceEnabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorEnvelope(c, "request body must be valid JSON")
		return
	}

	req.ServiceName = validation.SanitizeString(req.ServiceName, 200)
	if errs := validation.Validate(
		validation.Required("serviceName", req.ServiceName),
		validation.Required("serviceCost", req.ServiceCost),
		validation.ValidUint("serviceCost", req.ServiceCost),
	); len(errs) > 0 {
		errorEnvelope(c, errs.Error())
		return
	}

	cost, _ := new(big.Int).SetString(req.ServiceCost, 10)
	id := new(big.Int).SetUint64(req.ServiceID)

	result, err := s.contract.UpdateService(ctx, id, req.ServiceName, cost, req.ServiceEnabled)
	if err != nil {
		logging.Op(ctx, "update-service", "processor").Error("update service failed",
			"serviceId", req.ServiceID,
			"error", err,
		)
		errorEnvelope(c, writeFailureMessage(msgUpdateNotSent, msgUpdateUnconfirmed, err))
		return
	}

	s.hub.BroadcastServiceUpdated(req.ServiceID, req.ServiceName, cost.String(), req.ServiceEnabled, result.TxHash)

	c.JSON(http.StatusOK, gin.H{
		"status": "SUCCESS",
		"txHash": result.TxHash,
	})
}

func (s *Server) lookupAddressHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		PurchaseAddress string `json:"purchaseAddress"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorEnvelope(c, "request body must be valid JSON")
		return
	}

	req.PurchaseAddress = validation.SanitizeAddress(req.PurchaseAddress)
	if errs := validation.Validate(
		validation.ValidAddress("purchaseAddress", req.PurchaseAddress),
	); len(errs) > 0 {
		errorEnvelope(c, errs.Error())
		return
	}

	report, err := s.reconciler.Lookup(ctx, req.PurchaseAddress)
	if err != nil {
		logging.Op(ctx, "lookup-address", "reconcile").Error("address lookup failed",
			"address", req.PurchaseAddress,
			"error", err,
		)
		errorEnvelope(c, msgLookupFailed)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "SUCCESS",
		"transaction":  report.Purchases,
		"orderDetails": report.OrderDetails,
	})
}
