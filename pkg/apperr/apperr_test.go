package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCodeAndStatus(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{Validationf("quantity must be > 0"), CodeValidationError, http.StatusBadRequest},
		{NotFoundf("job %s", "j1"), CodeNotFound, http.StatusNotFound},
		{Conflictf("hub already assigned"), CodeConflict, http.StatusConflict},
		{Preconditionf("no accepted mechanic"), CodePreconditionFailed, http.StatusPreconditionFailed},
		{Transitionf("COMPLETED -> IN_PROGRESS"), CodeInvalidTransition, http.StatusUnprocessableEntity},
		{errors.New("boom"), CodeInternalError, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := Code(c.err); got != c.code {
			t.Fatalf("Code(%v) = %s, want %s", c.err, got, c.code)
		}
		if got := Status(c.err); got != c.status {
			t.Fatalf("Status(%v) = %d, want %d", c.err, got, c.status)
		}
	}
}

func TestWrappingSurvivesFurtherContext(t *testing.T) {
	err := fmt.Errorf("assign hub: %w", Conflictf("hub h1 already assigned to vehicle v1"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected wrapped error to still match ErrConflict")
	}
	if Status(err) != http.StatusConflict {
		t.Fatalf("expected 409 for wrapped conflict, got %d", Status(err))
	}
}

func TestWriteBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, NotFoundf("hub h9"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Error.Code != CodeNotFound {
		t.Fatalf("expected code NOT_FOUND, got %s", body.Error.Code)
	}
}
