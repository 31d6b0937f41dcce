package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "DM-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status == http.StatusBadGateway:
		return apiError{
			Code:    "DM-API-5020",
			Message: "Upstream model provider unavailable. Retry shortly.",
		}
	case status == http.StatusServiceUnavailable:
		return apiError{
			Code:    "DM-API-5030",
			Message: "Durable ingestion is not enabled on this server.",
		}
	case status >= 500:
		switch {
		case strings.Contains(raw, "no such table"), strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "DM-DB-5001",
				Message: "Database schema is not initialized. Restart the server to apply migrations.",
			}
		case strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"), strings.Contains(raw, "database is locked"):
			return apiError{
				Code:    "DM-DB-5002",
				Message: "Database is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "DM-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "DM-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "DM-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "DM-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "DM-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 {
		switch {
		case strings.Contains(raw, "prompt is required"):
			msg = "A prompt is required."
		case strings.Contains(raw, "dir is required"):
			msg = "An input directory is required."
		case strings.Contains(raw, "no files provided"):
			msg = "No files were provided."
		case strings.Contains(raw, "unsupported file format"):
			msg = "Invalid file format."
		case strings.Contains(raw, "unsupported output format"):
			msg = "Format must be one of json, csv or excel."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
