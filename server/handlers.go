package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"exchangeflow/exchange"
	"exchangeflow/logger"
	"exchangeflow/models"
)

type handler struct {
	exchanges map[string]exchange.Exchange
	log       *logger.Log
}

func registerExchangeRoutes(router *gin.RouterGroup, h *handler) {
	ex := router.Group("/exchanges/:exchange")
	{
		ex.GET("/time", h.getTime)
		ex.GET("/markets", h.getMarkets)
		ex.GET("/currencies", h.getCurrencies)
		ex.GET("/ticker", h.getTicker)
		ex.GET("/tickers", h.getTickers)
		ex.GET("/orderbook", h.getOrderBook)
		ex.GET("/trades", h.getTrades)
	}
}

// statusOf maps an error kind to the HTTP status the gateway answers with.
func statusOf(kind models.ErrorKind) int {
	switch kind {
	case models.KindBadRequest, models.KindBadSymbol, models.KindArgumentsRequired,
		models.KindInvalidOrder, models.KindInvalidAddress:
		return http.StatusBadRequest
	case models.KindNotSupported:
		return http.StatusNotImplemented
	case models.KindAuthenticationError, models.KindInvalidNonce:
		return http.StatusUnauthorized
	case models.KindPermissionDenied, models.KindAccountSuspended:
		return http.StatusForbidden
	case models.KindOrderNotFound:
		return http.StatusNotFound
	case models.KindRateLimitExceeded, models.KindDDoSProtection:
		return http.StatusTooManyRequests
	case models.KindExchangeNotAvailable, models.KindOnMaintenance, models.KindNetworkError:
		return http.StatusServiceUnavailable
	case models.KindRequestTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (h *handler) fail(c *gin.Context, err error) {
	kind, _ := models.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError {
		h.log.WithComponent("server").WithError(err).WithFields(logger.Fields{
			"exchange": c.Param("exchange"),
			"path":     c.FullPath(),
			"kind":     kind.String(),
		}).Warn("exchange call failed")
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind.String()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "kind": models.KindBadRequest.String()})
}

// adapter resolves the :exchange parameter and answers 404 when it is not
// configured.
func (h *handler) adapter(c *gin.Context) (exchange.Exchange, bool) {
	ex, ok := h.exchanges[c.Param("exchange")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "exchange " + c.Param("exchange") + " is not configured"})
		return nil, false
	}
	return ex, true
}

func requireSymbol(c *gin.Context) (string, bool) {
	symbol := c.Query("symbol")
	if symbol == "" {
		badRequest(c, "symbol query parameter is required")
		return "", false
	}
	return symbol, true
}

// intQuery reads an optional non-negative integer parameter.
func intQuery(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		badRequest(c, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

func (h *handler) getTime(c *gin.Context) {
	ex, ok := h.adapter(c)
	if !ok {
		return
	}
	ts, err := ex.FetchTime(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exchange": ex.ID(), "time": ts})
}

func (h *handler) getMarkets(c *gin.Context) {
	ex, ok := h.adapter(c)
	if !ok {
		return
	}
	markets, err := ex.LoadMarkets(c.Request.Context(), c.Query("reload") == "true")
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, markets)
}

func (h *handler) getCurrencies(c *gin.Context) {
	ex, ok := h.adapter(c)
	if !ok {
		return
	}
	currencies, err := ex.FetchCurrencies(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, currencies)
}

func (h *handler) getTicker(c *gin.Context) {
	ex, ok := h.adapter(c)
	if !ok {
		return
	}
	symbol, ok := requireSymbol(c)
	if !ok {
		return
	}
	ticker, err := ex.FetchTicker(c.Request.Context(), symbol)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ticker)
}

func (h *handler) getTickers(c *gin.Context) {
	ex, ok := h.adapter(c)
	if !ok {
		return
	}
	var symbols []string
	if raw := c.Query("symbols"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
	}
	tickers, err := ex.FetchTickers(c.Request.Context(), symbols)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tickers)
}

func (h *handler) getOrderBook(c *gin.Context) {
	ex, ok := h.adapter(c)
	if !ok {
		return
	}
	symbol, ok := requireSymbol(c)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	ob, err := ex.FetchOrderBook(c.Request.Context(), symbol, int(limit))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ob)
}

func (h *handler) getTrades(c *gin.Context) {
	ex, ok := h.adapter(c)
	if !ok {
		return
	}
	symbol, ok := requireSymbol(c)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	sinceVal, ok := intQuery(c, "since")
	if !ok {
		return
	}
	var since *int64
	if c.Query("since") != "" {
		since = &sinceVal
	}
	trades, err := ex.FetchTrades(c.Request.Context(), symbol, since, int(limit))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}
