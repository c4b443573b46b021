package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/0xmhha/calmspace/pkg/backup"
	"github.com/0xmhha/calmspace/pkg/collection"
	"github.com/gorilla/mux"
)

// maxBodyBytes limits request bodies; avatars are inlined data URLs.
const maxBodyBytes = 8 << 20

// BackupFilename is suggested to browsers downloading an export.
const BackupFilename = "calmspace-backup.json"

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"cache_state":    s.registration.State().String(),
		"active_version": s.registration.ActiveVersion(),
		"clients":        s.registration.Clients().Controlled(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := backup.Export(s.accessors.Store())
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", BackupFilename))
	if err := backup.Encode(w, doc); err != nil {
		s.logger.Warn("failed to write backup", "error", err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	doc, err := backup.Import(s.accessors.Store(), io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(err, backup.ErrInvalidDocument) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.internalError(w, r, err)
		return
	}

	s.logger.Info("backup imported", "keys", doc.Len())
	writeJSON(w, http.StatusOK, map[string]int{"imported": doc.Len()})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	report, err := s.recorder.Summary()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	days, err := s.accessors.UsageLog()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

type usageResponse struct {
	Streak     int   `json:"streak"`
	Milestones []int `json:"milestones"`
}

func (s *Server) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	reached, err := s.recorder.RecordUsage()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	streak, err := s.recorder.Streak()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if reached == nil {
		reached = []int{}
	}
	writeJSON(w, http.StatusOK, usageResponse{Streak: streak, Milestones: reached})
}

func (s *Server) handleMoods(w http.ResponseWriter, r *http.Request) {
	entries, err := s.accessors.MoodEntries()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if entries == nil {
		entries = []collection.MoodEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type moodRequest struct {
	Score int `json:"score"`
}

func (s *Server) handleSetMood(w http.ResponseWriter, r *http.Request) {
	var req moodRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.accessors.SetMood(req.Score); err != nil {
		if errors.Is(err, collection.ErrInvalidMood) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"day":   s.accessors.Today(),
		"score": req.Score,
	})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	text, err := s.accessors.Journal()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, text)
}

func (s *Server) handleSaveJournal(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if err := s.accessors.SaveJournal(string(data)); err != nil {
		s.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.accessors.Profile()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, errors.New("no profile saved"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var p collection.Profile
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.accessors.SaveProfile(p); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type themeBody struct {
	Theme collection.Theme `json:"theme"`
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	t, err := s.accessors.Theme()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, themeBody{Theme: t})
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var body themeBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.accessors.SetTheme(body.Theme); err != nil {
		if errors.Is(err, collection.ErrInvalidTheme) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	t, err := s.accessors.ToggleTheme()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, themeBody{Theme: t})
}

func sessionType(w http.ResponseWriter, r *http.Request) (collection.SessionType, bool) {
	t, err := collection.ParseSessionType(mux.Vars(r)["type"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return "", false
	}
	return t, true
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	t, ok := sessionType(w, r)
	if !ok {
		return
	}
	entries, err := s.accessors.SessionLog(t)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if entries == nil {
		entries = []collection.SessionEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type sessionResponse struct {
	Entry      collection.SessionEntry `json:"entry"`
	Milestones []int                   `json:"milestones"`
}

// handleLogSession starts a session the way the app does: practice is
// recorded for today, then the session is appended to its log.
func (s *Server) handleLogSession(w http.ResponseWriter, r *http.Request) {
	t, ok := sessionType(w, r)
	if !ok {
		return
	}

	reached, err := s.recorder.RecordUsage()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	entry, err := s.recorder.LogSession(t)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if reached == nil {
		reached = []int{}
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Entry: entry, Milestones: reached})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.accessors.Logout(); err != nil {
		s.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
