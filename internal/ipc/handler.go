package ipc

// Request and response logging for the socket loop

import (
	"log"
	"time"
)

// maxLoggedData caps how much of a request payload is logged
const maxLoggedData = 120

// RequestLogger logs incoming requests
func RequestLogger(req *Request) {
	if len(req.Data) == 0 {
		log.Printf("[IPC] Command: %s", req.Cmd)
		return
	}
	log.Printf("[IPC] Command: %s data=%s", req.Cmd, truncateForLog(string(req.Data), maxLoggedData))
}

// ResponseLogger logs outgoing responses
func ResponseLogger(resp *Response, duration time.Duration) {
	if resp.Success {
		log.Printf("[IPC] Response: success duration=%v", duration)
	} else {
		log.Printf("[IPC] Response: error=%q duration=%v", resp.Error, duration)
	}
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
