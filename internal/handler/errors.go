package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/storage"
)

// errorMapping ties a sentinel error to its HTTP status and code.
type errorMapping struct {
	err    error
	status int
	code   response.ErrCode
}

var serviceErrors = []errorMapping{
	{repository.ErrNotAssigned, http.StatusForbidden, response.ErrTestNotAssigned},
	{service.ErrTestNotStarted, http.StatusForbidden, response.ErrTestNotStarted},
	{service.ErrTestClosed, http.StatusForbidden, response.ErrTestClosed},
	{service.ErrTestCompromised, http.StatusForbidden, response.ErrTestCompromised},
	{service.ErrNotTestAuthor, http.StatusForbidden, response.ErrNotTestAuthor},
	{model.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
	{repository.ErrDuplicateNISN, http.StatusConflict, response.ErrConflict},
	{service.ErrPaperNotAvailable, http.StatusNotFound, response.ErrPaperNotAvailable},
	{service.ErrNotPDFTest, http.StatusBadRequest, response.ErrTestNotPDF},
	{model.ErrUnsupportedFile, http.StatusBadRequest, response.ErrUnsupportedFile},
	{model.ErrFileTooLarge, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge},
	{pgx.ErrNoRows, http.StatusNotFound, response.ErrNotFound},
	{storage.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
}

// failWith writes the response for a service error. Unknown errors are
// logged and reported as 500.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			response.Fail(c, m.status, m.code)
			return
		}
	}
	log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}

// paramUUID parses a UUID path parameter, writing a 400 on failure.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// paramInt parses a positive integer path parameter, writing a 400 on failure.
func paramInt(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id < 1 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
