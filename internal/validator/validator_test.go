package validator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/stemsi/exstem-proctor/internal/model"
)

func setup(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
}

func TestBindJSONUsesJSONNames(t *testing.T) {
	setup(t)

	body := `{"title":"ab","content_type":"VIDEO","duration_minutes":30,"student_ids":[1]}`
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req model.CreateTestRequest
	fields := BindJSON(c, &req)
	for _, name := range []string{"title", "content_type", "start_time"} {
		if fields[name] == "" {
			t.Errorf("missing message for %s in %v", name, fields)
		}
	}
	if _, ok := fields["Title"]; ok {
		t.Error("struct field name leaked into messages")
	}
}

func TestBindJSONMalformed(t *testing.T) {
	setup(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req model.CreateTestRequest
	fields := BindJSON(c, &req)
	if len(fields) != 1 || fields["detail"] == "" {
		t.Errorf("fields = %v, want a single detail", fields)
	}
}

func TestTranslateOverrides(t *testing.T) {
	setup(t)

	err := binding.Validator.ValidateStruct(&model.SubmitForm{TestID: "nope"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	fields := Translate(err)
	if got, want := fields["testId"], "testId must be a valid test ID"; got != want {
		t.Errorf("testId = %q, want %q", got, want)
	}
	if fields["file"] == "" {
		t.Errorf("missing file message in %v", fields)
	}
}

func TestTranslatePlainError(t *testing.T) {
	fields := Translate(errors.New("unexpected EOF"))
	if fields["detail"] != "unexpected EOF" {
		t.Errorf("fields = %v", fields)
	}
}
