package dto

type WebhookResponse struct {
	Status  string `json:"status"`
	Event   string `json:"event,omitempty"`
	Message string `json:"message,omitempty"`
}
