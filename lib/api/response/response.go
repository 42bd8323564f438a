package response

import "time"

const timestampLayout = "2006-01-02T15:04:05Z"

// Response is the envelope of every admin API reply.
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Success       bool        `json:"success" validate:"required"`
	StatusMessage string      `json:"status_message"`
	Timestamp     string      `json:"timestamp"`
}

func Ok(data interface{}) Response {
	return Response{
		Data:          data,
		Success:       true,
		StatusMessage: "Success",
		Timestamp:     timestamp(),
	}
}

func Error(message string) Response {
	return Response{
		Success:       false,
		StatusMessage: message,
		Timestamp:     timestamp(),
	}
}

func timestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}
