package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pet-care-tracker/internal/domain/reminders"
	"pet-care-tracker/internal/platform/httpclient"
)

// PushNotifier reenvía el recordatorio a un gateway HTTP de push.
type PushNotifier struct {
	client *httpclient.Client
	path   string
	token  string
}

func NewPushNotifier(baseURL, path, token string, timeout time.Duration) (*PushNotifier, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("push notifier: base url required")
	}
	c, err := httpclient.New(baseURL, timeout, httpclient.WithUserAgent("pet-care-tracker"))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		path = "/notifications"
	}
	return &PushNotifier{client: c, path: path, token: token}, nil
}

type pushRequest struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

func (n *PushNotifier) Notify(ctx context.Context, msg reminders.Notification) error {
	headers := map[string]string{}
	if n.token != "" {
		headers["Authorization"] = "Bearer " + n.token
	}

	req := pushRequest{
		To:    msg.UserID,
		Title: msg.Title,
		Body:  msg.Body,
		Data: map[string]string{
			"pet_id":         msg.PetID,
			"appointment_id": msg.AppointmentID,
		},
	}
	if err := n.client.DoJSON(ctx, http.MethodPost, n.path, headers, req, nil); err != nil {
		return fmt.Errorf("push notify: %w", err)
	}
	return nil
}
