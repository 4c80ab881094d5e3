package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error == nil {
		t.Fatalf("no error in body: %s", w.Body.String())
	}
	return body.Error.Code
}

func TestFailWith(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{fmt.Errorf("get test: %w", repository.ErrNotAssigned), http.StatusForbidden, response.ErrTestNotAssigned},
		{service.ErrTestCompromised, http.StatusForbidden, response.ErrTestCompromised},
		{fmt.Errorf("insert: %w", model.ErrAlreadySubmitted), http.StatusConflict, response.ErrAlreadySubmitted},
		{model.ErrFileTooLarge, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge},
		{model.ErrUnsupportedFile, http.StatusBadRequest, response.ErrUnsupportedFile},
		{pgx.ErrNoRows, http.StatusNotFound, response.ErrNotFound},
		{errors.New("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			failWith(c, zerolog.Nop(), tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if code := errorCode(t, w); code != tt.code {
				t.Errorf("code = %s, want %s", code, tt.code)
			}
		})
	}
}

func TestPathParams(t *testing.T) {
	r := gin.New()
	r.GET("/tests/:test_id/students/:student_id", func(c *gin.Context) {
		if _, ok := paramUUID(c, "test_id"); !ok {
			return
		}
		if _, ok := paramInt(c, "student_id"); !ok {
			return
		}
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		path string
		want int
	}{
		{"/tests/0b9c8d5e-2f1a-4c3b-9d8e-7f6a5b4c3d2e/students/12", http.StatusNoContent},
		{"/tests/not-a-uuid/students/12", http.StatusBadRequest},
		{"/tests/0b9c8d5e-2f1a-4c3b-9d8e-7f6a5b4c3d2e/students/0", http.StatusBadRequest},
		{"/tests/0b9c8d5e-2f1a-4c3b-9d8e-7f6a5b4c3d2e/students/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{90 * time.Second, "1m 30s"},
		{3*time.Hour + 5*time.Minute + 2*time.Second, "3h 5m 2s"},
		{50 * time.Hour, "2d 2h 0m 0s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
