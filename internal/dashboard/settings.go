package dashboard

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/eddiefleurent/zone_strangler/internal/models"
)

const redacted = "********"

// redact hides the bot token from API responses.
func redact(s *models.Settings) *models.Settings {
	out := s.Clone()
	if out.TelegramBotToken != "" {
		out.TelegramBotToken = redacted
	}
	return out
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.repo.Settings()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redact(settings))
}

// handlePutSettings overlays the posted members onto the saved settings.
// Members left out keep their value; a redacted token is left unchanged.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.fail(w, r, badRequest("read body: %v", err))
		return
	}
	saved, err := s.repo.UpdateSettings(func(cur *models.Settings) error {
		token, log, extra := cur.TelegramBotToken, cur.ActivityLog, cur.Extra
		if err := json.Unmarshal(body, cur); err != nil {
			return badRequest("invalid settings: %v", err)
		}
		for k, v := range extra {
			if _, ok := cur.Extra[k]; !ok {
				if cur.Extra == nil {
					cur.Extra = make(map[string]json.RawMessage)
				}
				cur.Extra[k] = v
			}
		}
		if cur.TelegramBotToken == redacted {
			cur.TelegramBotToken = token
		}
		// The activity log is written by the scheduler only.
		cur.ActivityLog = log
		if err := cur.Validate(); err != nil {
			return badRequest("%v", err)
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redact(saved))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	settings, err := s.repo.Settings()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]models.ActivityRecord, 0, len(settings.ActivityLog))
	for i := len(settings.ActivityLog) - 1; i >= 0; i-- {
		out = append(out, settings.ActivityLog[i])
	}
	writeJSON(w, http.StatusOK, out)
}
