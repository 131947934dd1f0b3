package validate

import (
	"errors"
	"strings"
	"testing"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=8,max=72"`
	Confirm  string `json:"confirm" validate:"eqfield=Password"`
	Episode  int    `json:"episode" validate:"gte=0"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(signup{Email: "nope", Password: "short", Confirm: "other", Episode: -1})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	want := map[string]string{
		"email":    "must be a valid email",
		"password": "must be at least 8 characters",
		"confirm":  "must match Password",
		"episode":  "must be >= 0",
	}
	for field, msg := range want {
		if verr.Fields[field] != msg {
			t.Fatalf("field %s: got %q want %q", field, verr.Fields[field], msg)
		}
	}
	if !strings.HasPrefix(verr.Error(), "validation failed: ") {
		t.Fatalf("unexpected message %q", verr.Error())
	}
}

func TestStructAcceptsValidInput(t *testing.T) {
	in := signup{Email: "fan@example.com", Password: "password1", Confirm: "password1"}
	if err := Struct(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFields(t *testing.T) {
	err := Fields("consent", "must be accepted")
	var verr *Error
	if !errors.As(err, &verr) || verr.Fields["consent"] != "must be accepted" {
		t.Fatalf("unexpected %v", err)
	}
}
