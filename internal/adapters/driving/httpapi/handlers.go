package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

type channelView struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CalendarID  string     `json:"calendar_id"`
	ResourceID  string     `json:"resource_id,omitempty"`
	ResourceURI string     `json:"resource_uri,omitempty"`
	Expiration  *time.Time `json:"expiration,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toChannelView(ch domain.WebhookChannel) channelView {
	v := channelView{
		ID:          ch.ID,
		UserID:      ch.UserID,
		CalendarID:  ch.CalendarID,
		ResourceID:  ch.ResourceID,
		ResourceURI: ch.ResourceURI,
		CreatedAt:   ch.CreatedAt,
	}
	if !ch.Expiration.IsZero() {
		exp := ch.Expiration
		v.Expiration = &exp
	}
	return v
}

type registerChannelRequest struct {
	CalendarID string `json:"calendar_id"`
}

func (s *Server) handleRegisterChannel(w http.ResponseWriter, r *http.Request) {
	var req registerChannelRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	ch, err := s.svc.Channels.Register(r.Context(), r.PathValue("userID"), req.CalendarID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChannelView(*ch))
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.svc.Channels.List(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	views := make([]channelView, 0, len(channels))
	for _, ch := range channels {
		views = append(views, toChannelView(ch))
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": views})
}

func (s *Server) handleUnregisterChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Channels.Unregister(r.Context(), r.PathValue("userID"), r.PathValue("channelID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFullSync starts a background full sync. A full sync already running
// for the user is reported, not duplicated.
func (s *Server) handleFullSync(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	err := s.svc.FullSync.Start(r.Context(), userID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"user_id": userID, "status": "started"})
	case errors.Is(err, domain.ErrSyncInProgress):
		writeJSON(w, http.StatusAccepted, map[string]string{"user_id": userID, "status": "already_running"})
	default:
		writeServiceError(w, err)
	}
}

type connectionView struct {
	Status     domain.ConnectionStatus `json:"status"`
	LastSyncAt *time.Time              `json:"last_sync_at,omitempty"`
	LastError  string                  `json:"last_error,omitempty"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

type cursorView struct {
	CalendarID string    `json:"calendar_id"`
	HasCursor  bool      `json:"has_cursor"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type statusView struct {
	UserID     string          `json:"user_id"`
	Connection *connectionView `json:"connection,omitempty"`
	Cursors    []cursorView    `json:"cursors"`
	Channels   []channelView   `json:"channels"`
	Running    []string        `json:"running"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status.Status(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	view := statusView{
		UserID:   st.UserID,
		Cursors:  make([]cursorView, 0, len(st.Cursors)),
		Channels: make([]channelView, 0, len(st.Channels)),
		Running:  append([]string{}, st.Running...),
	}
	if c := st.Connection; c != nil {
		view.Connection = &connectionView{Status: c.Status, LastError: c.LastError, UpdatedAt: c.UpdatedAt}
		if !c.LastSyncAt.IsZero() {
			at := c.LastSyncAt
			view.Connection.LastSyncAt = &at
		}
	}
	for _, cur := range st.Cursors {
		// Only cursor presence is reported.
		view.Cursors = append(view.Cursors, cursorView{
			CalendarID: cur.CalendarID,
			HasCursor:  cur.SyncToken != "",
			UpdatedAt:  cur.UpdatedAt,
		})
	}
	for _, ch := range st.Channels {
		view.Channels = append(view.Channels, toChannelView(ch))
	}
	writeJSON(w, http.StatusOK, view)
}
