package handlers

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
