package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/pss-rag/docqa/internal/store"
)

func newAuthHandler(t *testing.T) (*AuthHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	h := &AuthHandler{Store: &store.Store{DB: db}, Secret: []byte("test-secret"), TokenTTL: time.Hour}
	return h, mock, func() { db.Close() }
}

func postJSON(t *testing.T, handler echo.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestSignupCreatesUser(t *testing.T) {
	h, mock, done := newAuthHandler(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := postJSON(t, h.signup, "/api/auth/signup", `{"email":"a@b.com","password":"longenough"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSignupDuplicateEmailIs409(t *testing.T) {
	h, mock, done := newAuthHandler(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pq.Error{Code: "23505"})

	rec := postJSON(t, h.signup, "/api/auth/signup", `{"email":"a@b.com","password":"longenough"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409", rec.Code)
	}
}

func TestSignupStoreErrorHidesDetail(t *testing.T) {
	h, mock, done := newAuthHandler(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(errors.New(`dial tcp 10.0.0.9:5432: connect: connection refused`))

	rec := postJSON(t, h.signup, "/api/auth/signup", `{"email":"a@b.com","password":"longenough"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "10.0.0.9") || strings.Contains(body, "dial tcp") {
		t.Fatalf("response leaks internal detail: %s", body)
	}
}

func TestSignupShortPasswordIs400(t *testing.T) {
	h, _, done := newAuthHandler(t)
	defer done()

	rec := postJSON(t, h.signup, "/api/auth/signup", `{"email":"a@b.com","password":"short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
}

func TestLoginReturnsToken(t *testing.T) {
	h, mock, done := newAuthHandler(t)
	defer done()

	hash, err := bcrypt.GenerateFromPassword([]byte("longenough"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash FROM users WHERE email=$1`)).
		WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash)))

	rec := postJSON(t, h.login, "/api/auth/login", `{"email":"a@b.com","password":"longenough"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["token"] == "" {
		t.Fatal("expected a token in the response body")
	}
	cookies := rec.Result().Cookies()
	var found bool
	for _, ck := range cookies {
		if ck.Name == "auth" && ck.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an auth cookie")
	}
}

func TestLoginWrongPasswordIs401(t *testing.T) {
	h, mock, done := newAuthHandler(t)
	defer done()

	hash, err := bcrypt.GenerateFromPassword([]byte("rightpassword"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash FROM users WHERE email=$1`)).
		WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash)))

	rec := postJSON(t, h.login, "/api/auth/login", `{"email":"a@b.com","password":"wrongpassword"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
}
