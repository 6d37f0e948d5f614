package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/logger"
)

// Push notification headers.
const (
	headerChannelID         = "X-Goog-Channel-ID"
	headerChannelToken      = "X-Goog-Channel-Token"
	headerChannelExpiration = "X-Goog-Channel-Expiration"
	headerResourceID        = "X-Goog-Resource-ID"
	headerResourceURI       = "X-Goog-Resource-URI"
	headerResourceState     = "X-Goog-Resource-State"
	headerMessageNumber     = "X-Goog-Message-Number"
)

// handleWebhook accepts POST /webhooks/google/{userID}/{channelID}.
//
// The provider always gets 200 unless the user id is missing: sync
// outcomes are recorded in the connection status, and an error response
// would only make the provider redeliver.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	// Notifications carry no body; drain what little there is.
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, s.cfg.MaxBodyBytes))

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/webhooks/google/"), "/")
	userID, channelID, _ := strings.Cut(rest, "/")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing user id")
		return
	}
	if channelID == "" {
		channelID = r.Header.Get(headerChannelID)
	}

	n := domain.Notification{
		UserID:            userID,
		ChannelID:         channelID,
		ResourceID:        r.Header.Get(headerResourceID),
		ResourceURI:       r.Header.Get(headerResourceURI),
		ResourceState:     r.Header.Get(headerResourceState),
		ChannelToken:      r.Header.Get(headerChannelToken),
		ChannelExpiration: r.Header.Get(headerChannelExpiration),
		MessageNumber:     r.Header.Get(headerMessageNumber),
	}

	err := s.svc.Sync.HandleNotification(r.Context(), n)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSyncInProgress):
		logger.Debug("webhook for user=%s channel=%s coalesced", userID, channelID)
	default:
		logger.Warn("webhook for user=%s channel=%s not processed: %v", userID, channelID, err)
	}
	w.WriteHeader(http.StatusOK)
}
