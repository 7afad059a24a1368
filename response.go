package main

import (
	"errors"
	"fmt"
	"net/http"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
	"github.com/gin-gonic/gin"
)

const internalErrorMessage = "internal server error"

// apiResponse is the envelope every /api route answers with.
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: data})
}

func respondMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, apiResponse{Success: true, Message: message, Data: data})
}

// respondError maps err to a status code. Unexpected errors are recorded on the gin
// context for customErrorLogger and the client only sees a generic message.
func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		message = internalErrorMessage
	}
	c.AbortWithStatusJSON(status, apiResponse{Success: false, Error: message})
}

// recoverPanic answers a recovered panic with the generic 500 envelope; the panic value
// goes to the log through respondError.
func recoverPanic(c *gin.Context, rec any) {
	respondError(c, fmt.Errorf("panic: %v", rec))
}

func errorStatus(err error) int {
	switch {
	case utils.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, docstore.ErrInvalidPath):
		return http.StatusBadRequest
	case utils.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, apiResponse{Success: false, Error: "route not found"})
}

func customMethodNotAllowedHandler(c *gin.Context) {
	respondError(c, utils.ErrMethodNotAllowed)
}
