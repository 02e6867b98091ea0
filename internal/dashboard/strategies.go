package dashboard

import (
	"net/http"
	"strings"

	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/strategy"
)

type buildRequest struct {
	Index   string `json:"index"`
	Horizon string `json:"horizon"`
	Expiry  string `json:"expiry,omitempty"` // 14-Aug-2025; empty picks the next one
	LotSize int    `json:"lot_size,omitempty"`
}

type adoptRequest struct {
	buildRequest
	Table *models.StrategyTable `json:"table,omitempty"`
	Tag   string                `json:"tag,omitempty"`
	Tiers []models.RewardTier   `json:"tiers,omitempty"`
}

func (s *Server) toStrategyRequest(b buildRequest) (strategy.Request, error) {
	idx, err := models.ParseIndex(b.Index)
	if err != nil {
		return strategy.Request{}, badRequest("%v", err)
	}
	h := models.HorizonWeekly
	if strings.TrimSpace(b.Horizon) != "" {
		if h, err = models.ParseHorizon(b.Horizon); err != nil {
			return strategy.Request{}, badRequest("%v", err)
		}
	}
	req := strategy.Request{Index: idx, Horizon: h, LotSize: b.LotSize}
	if b.Expiry != "" {
		if req.Expiry, err = models.ParseExpiry(b.Expiry, s.location()); err != nil {
			return strategy.Request{}, badRequest("%v", err)
		}
	}
	if req.LotSize <= 0 {
		settings, err := s.repo.Settings()
		if err != nil {
			return strategy.Request{}, err
		}
		req.LotSize = settings.LotSize(idx)
	}
	return req, nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body buildRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := s.toStrategyRequest(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	table, err := s.strategies.Build(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// handleAdopt adopts the table in the body, or builds a fresh one from the
// index/horizon/expiry fields when no table is given.
func (s *Server) handleAdopt(w http.ResponseWriter, r *http.Request) {
	var body adoptRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	table := body.Table
	if table == nil {
		req, err := s.toStrategyRequest(body.buildRequest)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if table, err = s.strategies.Build(r.Context(), req); err != nil {
			s.fail(w, r, err)
			return
		}
	} else if !table.Index.Valid() || len(table.Rows) == 0 {
		s.fail(w, r, badRequest("table needs an index and at least one row"))
		return
	}

	res, err := s.trades.Adopt(r.Context(), table, body.Tag, body.Tiers...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExpiries(w http.ResponseWriter, r *http.Request) {
	idx, err := models.ParseIndex(r.URL.Query().Get("index"))
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	dates, err := s.strategies.Expiries(r.Context(), idx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	labels := make([]string, len(dates))
	for i, d := range dates {
		labels[i] = models.FormatExpiry(d)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"index": idx, "expiries": labels})
}
