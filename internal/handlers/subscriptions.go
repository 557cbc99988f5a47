package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidtube/backend/internal/repositories"
)

// SubscriptionHandler toggles channel subscriptions.
type SubscriptionHandler struct {
	Subscriptions SubscriptionStore
}

type subscriptionResponse struct {
	Subscribed bool `json:"subscribed"`
}

// Toggle handles POST /api/v1/subscriptions/c/{channelId}.
func (h SubscriptionHandler) Toggle(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	subscriber, err := currentUser(r)
	if err != nil {
		return err
	}

	channelID, err := pathID(chi.URLParam(r, "channelId"), "Invalid channel id")
	if err != nil {
		return err
	}
	if channelID == subscriber.ID {
		return BadRequest("You cannot subscribe to your own channel")
	}

	subscribed, err := h.Subscriptions.Toggle(ctx, subscriber.ID, channelID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("Channel not found").Wrap(err)
		}
		return ServerError("Failed to toggle subscription", err)
	}

	message := "Unsubscribed successfully"
	if subscribed {
		message = "Subscribed successfully"
	}
	return respond(ctx, w, http.StatusOK, subscriptionResponse{Subscribed: subscribed}, message)
}
