package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/webclinic017/GDA-v2/internal/ledger"
	"github.com/webclinic017/GDA-v2/pkg/db"

	"github.com/gin-gonic/gin"
)

type listQuery struct {
	Symbol string `form:"symbol"`
	Limit  int    `form:"limit"`
}

func (q *listQuery) normalize() {
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func (s *Server) bindList(c *gin.Context) (listQuery, bool) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return q, false
	}
	q.normalize()
	if s.Queries == nil {
		respondError(c, http.StatusServiceUnavailable, "JOURNAL_DISABLED", "journal database not configured")
		return q, false
	}
	return q, true
}

// getStatus summarises the bot: mode, cached balance and the open book.
func (s *Server) getStatus(c *gin.Context) {
	resp := gin.H{
		"meta":        s.Meta,
		"server_time": time.Now().UTC(),
		"uptime":      time.Since(s.Meta.StartedAt).Round(time.Second).String(),
	}
	if s.Balance != nil {
		resp["balance"] = s.Balance.Get()
	}
	if s.State != nil {
		var longs, shorts []string
		for _, r := range s.State.Records() {
			if r.IsLong() {
				longs = append(longs, r.Symbol)
			} else {
				shorts = append(shorts, r.Symbol)
			}
		}
		resp["longs"] = longs
		resp["shorts"] = shorts
		resp["ledger_updated_at"] = s.State.UpdatedAt()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getLedger(c *gin.Context) {
	if s.State == nil {
		respondError(c, http.StatusServiceUnavailable, "STATE_UNAVAILABLE", "ledger snapshot not configured")
		return
	}
	records := s.State.Records()
	positions := make(map[string]ledger.Record, len(records))
	for _, r := range records {
		positions[r.Symbol] = r
	}
	c.JSON(http.StatusOK, gin.H{
		"updated_at": s.State.UpdatedAt(),
		"positions":  positions,
	})
}

func (s *Server) getLedgerRecord(c *gin.Context) {
	if s.State == nil {
		respondError(c, http.StatusServiceUnavailable, "STATE_UNAVAILABLE", "ledger snapshot not configured")
		return
	}
	symbol := strings.ToUpper(c.Param("symbol"))
	rec, ok := s.State.Record(symbol)
	if !ok {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "no record for "+symbol)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "record": rec})
}

func (s *Server) getQuotes(c *gin.Context) {
	if s.Quotes == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, s.Quotes.All())
}

func (s *Server) getCycles(c *gin.Context) {
	q, ok := s.bindList(c)
	if !ok {
		return
	}
	cycles, err := s.Queries.ListCycles(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, cycles)
}

func (s *Server) getCycle(c *gin.Context) {
	if s.Queries == nil {
		respondError(c, http.StatusServiceUnavailable, "JOURNAL_DISABLED", "journal database not configured")
		return
	}
	cycle, err := s.Queries.GetCycle(c.Request.Context(), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "cycle not found")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, cycle)
}

func (s *Server) getOrders(c *gin.Context) {
	q, ok := s.bindList(c)
	if !ok {
		return
	}
	orders, err := s.Queries.ListOrders(c.Request.Context(), q.Symbol, q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) getTrades(c *gin.Context) {
	q, ok := s.bindList(c)
	if !ok {
		return
	}
	trades, err := s.Queries.ListClosedTrades(c.Request.Context(), q.Symbol, q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) getReconciliations(c *gin.Context) {
	q, ok := s.bindList(c)
	if !ok {
		return
	}
	evs, err := s.Queries.ListReconciliationEvents(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, evs)
}
