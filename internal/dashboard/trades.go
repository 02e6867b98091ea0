package dashboard

import (
	"net/http"
	"time"

	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/trades"
	"github.com/eddiefleurent/zone_strangler/internal/util"
)

func (s *Server) location() *time.Location {
	return s.cfg.Now().Location()
}

type runningResponse struct {
	GroupBy  trades.GroupBy `json:"group_by"`
	Groups   []trades.Group `json:"groups"`
	TotalPnL float64        `json:"total_pnl"`
}

func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	by, err := trades.ParseGroupBy(r.URL.Query().Get("group_by"))
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	groups, err := s.trades.Running(by)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	total := 0.0
	for _, g := range groups {
		total += g.PnL
	}
	if groups == nil {
		groups = []trades.Group{}
	}
	writeJSON(w, http.StatusOK, runningResponse{GroupBy: by, Groups: groups, TotalPnL: util.Round2(total)})
}

type tradesResponse struct {
	Trades   []models.Trade `json:"trades"`
	TotalPnL float64        `json:"total_pnl"`
}

func (s *Server) handleClosed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := trades.ClosedFilter{Tag: q.Get("tag"), Status: models.TradeStatus(q.Get("status"))}
	if v := q.Get("instrument"); v != "" {
		idx, err := models.ParseIndex(v)
		if err != nil {
			s.fail(w, r, badRequest("%v", err))
			return
		}
		f.Instrument = idx
	}
	if f.Status != "" && (!f.Status.Valid() || !f.Status.IsTerminal()) {
		s.fail(w, r, badRequest("status must be Target, Stoploss or Manually Closed"))
		return
	}
	closed, err := s.trades.Closed(f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tradesResponse{Trades: closed, TotalPnL: trades.GroupPnL(closed)})
}

func (s *Server) handleExpired(w http.ResponseWriter, r *http.Request) {
	expired, err := s.trades.Expired()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tradesResponse{Trades: expired, TotalPnL: trades.GroupPnL(expired)})
}

// Statistics summarises closed and running trades.
type Statistics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	RealizedPnL   float64 `json:"realized_pnl"`
	AveragePnL    float64 `json:"average_pnl"`
	CurrentOpen   int     `json:"current_open"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

func (s *Server) calculateStatistics() (*Statistics, error) {
	all, err := s.repo.Trades()
	if err != nil {
		return nil, err
	}
	stats := &Statistics{}
	for i := range all {
		t := &all[i]
		if t.IsRunning() {
			stats.CurrentOpen++
			stats.UnrealizedPnL += t.CurrentPnL()
			continue
		}
		stats.TotalTrades++
		pnl := t.CurrentPnL()
		stats.RealizedPnL += pnl
		if pnl > 0 {
			stats.WinningTrades++
		} else if pnl < 0 {
			stats.LosingTrades++
		}
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = util.Round2(float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100)
		stats.AveragePnL = util.Round2(stats.RealizedPnL / float64(stats.TotalTrades))
	}
	stats.RealizedPnL = util.Round2(stats.RealizedPnL)
	stats.UnrealizedPnL = util.Round2(stats.UnrealizedPnL)
	return stats, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.calculateStatistics()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var body idsRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r)(s.trades.Close(r.Context(), body.IDs...))
}

func (s *Server) handleCloseGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GroupBy string `json:"group_by"`
		Key     string `json:"key"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	by, err := trades.ParseGroupBy(body.GroupBy)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	if body.Key == "" {
		s.fail(w, r, badRequest("key is required"))
		return
	}
	s.respond(w, r)(s.trades.CloseGroup(r.Context(), by, body.Key))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var body idsRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r)(s.trades.Delete(r.Context(), body.IDs...))
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tag string `json:"tag"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Tag == "" {
		s.fail(w, r, badRequest("tag is required"))
		return
	}
	s.respond(w, r)(s.trades.DeleteBatch(r.Context(), body.Tag))
}

func (s *Server) handleDeleteExpiry(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Instrument string `json:"instrument,omitempty"`
		Expiry     string `json:"expiry"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	exp, err := models.ParseExpiry(body.Expiry, s.location())
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	var idx models.Index
	if body.Instrument != "" {
		if idx, err = models.ParseIndex(body.Instrument); err != nil {
			s.fail(w, r, badRequest("%v", err))
			return
		}
	}
	s.respond(w, r)(s.trades.DeleteExpiry(r.Context(), idx, models.FormatExpiry(exp)))
}

func (s *Server) handleDeleteClosed(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r)(s.trades.DeleteAllClosed(r.Context()))
}

// respond writes an operation result or its error.
func (s *Server) respond(w http.ResponseWriter, r *http.Request) func(*trades.OpResult, error) {
	return func(res *trades.OpResult, err error) {
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if res.IDs == nil {
			res.IDs = []string{}
		}
		writeJSON(w, http.StatusOK, res)
	}
}
