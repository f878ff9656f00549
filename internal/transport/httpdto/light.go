package httpdto

type UpdateLightRequest struct {
	Color string `json:"color" binding:"required"`
}

// StatusResponse is the publish endpoint reply: {"status":"ok"} or
// {"status":"error","detail":"..."}.
type StatusResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

func NewStatusOK() StatusResponse {
	return StatusResponse{Status: StatusOK}
}

func NewStatusError(detail string) StatusResponse {
	return StatusResponse{Status: StatusError, Detail: detail}
}

type HealthResponse struct {
	Status      string `json:"status"`
	Broker      string `json:"broker"`
	Connections int    `json:"connections"`
	Error       string `json:"error,omitempty"`
}
