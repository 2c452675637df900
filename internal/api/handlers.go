package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"autocheckin/internal/api/response"
	"autocheckin/internal/auth"
	"autocheckin/internal/queue"
	"autocheckin/internal/store"
)

func (s *server) index(c *gin.Context) {
	response.OK(c, "Welcome to the AutoCheckin API", gin.H{
		"version": "1.0",
		"endpoints": gin.H{
			"auth_test":        "/api/v1/auth/test",
			"status":           "/api/v1/status",
			"state":            "/api/v1/state",
			"refresh":          "/api/v1/refresh",
			"refresh_session":  "/api/v1/refresh-session/<email>",
			"fetch_users":      "/api/v1/fetch-users",
			"try_codes":        "/api/v1/try-codes",
			"codes":            "/api/v1/codes",
			"fetch_attendance": "/api/v1/fetch-attendance",
		},
		"status": gin.H{"connected": s.deps.Store.Connected()},
	})
}

func (s *server) healthz(c *gin.Context) {
	redisHealthy := s.deps.Redis == nil || s.deps.Redis.Healthy(c.Request.Context())
	_, storeErr := s.deps.Store.Meta()
	status := http.StatusOK
	if !redisHealthy || storeErr != nil {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "store": storeErr == nil})
}

func (s *server) authTest(c *gin.Context) {
	key := c.GetHeader(auth.HeaderName)
	switch {
	case key == "":
		response.Fail(c, http.StatusBadRequest, "Authentication Test Result", "Missing "+auth.HeaderName+" header")
	case key != s.deps.Cfg.CheckoutAPIKey:
		response.Fail(c, http.StatusBadRequest, "Authentication Test Result", "Invalid API key")
	default:
		response.OK(c, "Authentication Test Result", gin.H{"authenticated": true})
	}
}

func (s *server) status(c *gin.Context) {
	response.OK(c, "API Status", gin.H{"connected": s.deps.Store.Connected()})
}

func (s *server) state(c *gin.Context) {
	doc, err := s.deps.Store.Snapshot()
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "API Error", err.Error())
		return
	}
	response.OK(c, "Global State", gin.H{
		"connected":   doc.Meta.Connected,
		"stored_data": doc,
	})
}

// refreshAll returns all stored sessions, stamps the refresh timestamp, and
// asks the scheduler to run a cycle now.
func (s *server) refreshAll(c *gin.Context) {
	accounts, err := s.deps.Store.Accounts()
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "API Error", err.Error())
		return
	}
	_ = s.deps.Store.UpdateMeta(func(m *store.Meta) {
		t := time.Now().UTC()
		m.LastAllSessionRefresh = &t
	})
	if err := s.deps.Queue.Publish(c.Request.Context(), queue.Message{Type: queue.CmdRefreshAll}); err != nil {
		s.deps.Log.Warn().Err(err).Msg("refresh command publish failed")
	}
	response.OK(c, "Checkin sessions refreshed successfully", gin.H{"sessions": accounts})
}

func (s *server) refreshSession(c *gin.Context) {
	email := c.Param("email")
	acct, ok, err := s.deps.Store.Account(email)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "API Error", err.Error())
		return
	}
	if !ok {
		response.Fail(c, http.StatusNotFound, "Session not found", "No checkin session found for email: "+email)
		return
	}
	_ = s.deps.Store.UpdateMeta(func(m *store.Meta) {
		t := time.Now().UTC()
		m.LastIndividualSessionRefresh = &t
	})
	response.OK(c, "Checkin session refreshed successfully", gin.H{"session": acct})
}

func (s *server) fetchUsers(c *gin.Context) {
	if err := s.deps.FetchUsers(c.Request.Context()); err != nil {
		response.OK(c, "User fetch failed", gin.H{"success": false})
		return
	}
	response.OK(c, "User fetch completed", gin.H{"success": true})
}

func (s *server) tryCodes(c *gin.Context) {
	if err := s.deps.Queue.Publish(c.Request.Context(), queue.Message{Type: queue.CmdTryCodes}); err != nil {
		response.Fail(c, http.StatusInternalServerError, "Code submission failed", err.Error())
		return
	}
	response.OK(c, "Code submission queued", gin.H{"queued": true})
}

func (s *server) codes(c *gin.Context) {
	fetched, err := s.deps.Checkout.Codes(c.Request.Context(), s.deps.Cfg.CodesPath)
	if err != nil {
		response.Fail(c, http.StatusBadGateway, "Code fetch failed", err.Error())
		return
	}
	values := make([]string, 0, len(fetched))
	for _, code := range fetched {
		values = append(values, code.Value)
	}
	sort.Strings(values)
	response.OK(c, "Available codes retrieved successfully", gin.H{"codes": values})
}

func (s *server) fetchAttendance(c *gin.Context) {
	if err := s.deps.Queue.Publish(c.Request.Context(), queue.Message{Type: queue.CmdAttendanceSync}); err != nil {
		response.Fail(c, http.StatusInternalServerError, "Attendance fetch failed", err.Error())
		return
	}
	response.OK(c, "Attendance fetch queued", gin.H{"queued": true})
}
