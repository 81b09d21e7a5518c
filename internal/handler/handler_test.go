package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/classfit/gym-class-reservation/internal/booking"
	"github.com/classfit/gym-class-reservation/internal/handler"
	"github.com/classfit/gym-class-reservation/internal/middleware"
	"github.com/classfit/gym-class-reservation/internal/model"
	"github.com/classfit/gym-class-reservation/internal/router"
	"github.com/classfit/gym-class-reservation/internal/store/memory"
)

const testSecret = "test-secret"

type testAPI struct {
	e     *echo.Echo
	coord *booking.Coordinator
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	coord := booking.New(memory.New(), nil, nil, 0)
	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterMember(e, handler.NewMemberHandler(coord), testSecret)
	router.RegisterStaff(e, handler.NewStaffHandler(coord), testSecret)
	return &testAPI{e: e, coord: coord}
}

func signToken(t *testing.T, sub, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (a *testAPI) createClass(t *testing.T, capacity int) string {
	t.Helper()
	staff := signToken(t, "1000", middleware.RoleStaff)
	rec := a.do(t, http.MethodPost, "/v1/classes", staff,
		`{"title":"Yoga Flow","coach_name":"Iris","starts_at":"2025-06-03T07:00:00Z","max_capacity":`+strconv.Itoa(capacity)+`}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create class: %d %s", rec.Code, rec.Body.String())
	}
	id := decode(t, rec)["id"].(float64)
	return strconv.Itoa(int(id))
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d, want 200", rec.Code)
	}
}

func TestAuthGates(t *testing.T) {
	a := newTestAPI(t)
	classID := a.createClass(t, 1)

	// No token.
	rec := a.do(t, http.MethodPost, "/v1/classes/"+classID+"/join", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d, want 401", rec.Code)
	}
	// Garbage token.
	rec = a.do(t, http.MethodPost, "/v1/classes/"+classID+"/join", "not-a-jwt", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d, want 401", rec.Code)
	}
	// Member token on a staff route.
	member := signToken(t, "1", middleware.RoleMember)
	rec = a.do(t, http.MethodPost, "/v1/classes", member, `{"title":"x"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code=%d, want 403", rec.Code)
	}
	// Staff token on a member route.
	staff := signToken(t, "1000", middleware.RoleStaff)
	rec = a.do(t, http.MethodPost, "/v1/classes/"+classID+"/join", staff, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code=%d, want 403", rec.Code)
	}
}

func TestJoinAndWaitlistFlow(t *testing.T) {
	a := newTestAPI(t)
	classID := a.createClass(t, 1)
	alice := signToken(t, "1", middleware.RoleMember)
	bob := signToken(t, "2", middleware.RoleMember)

	rec := a.do(t, http.MethodPost, "/v1/classes/"+classID+"/join", alice, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("alice join: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["status"]; got != string(model.StatusConfirmed) {
		t.Fatalf("alice status=%v, want confirmed", got)
	}

	rec = a.do(t, http.MethodPost, "/v1/classes/"+classID+"/join", bob, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("bob join: %d %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["status"] != string(model.StatusWaitlist) {
		t.Fatalf("bob status=%v, want waitlist", body["status"])
	}
	if body["position"] != float64(1) {
		t.Fatalf("bob position=%v, want 1", body["position"])
	}

	// Duplicate join conflicts.
	rec = a.do(t, http.MethodPost, "/v1/classes/"+classID+"/join", alice, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate join: %d, want 409", rec.Code)
	}
	// Unknown class.
	rec = a.do(t, http.MethodPost, "/v1/classes/9999/join", alice, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown class: %d, want 404", rec.Code)
	}
}

func TestCancelPromoteConfirmFlow(t *testing.T) {
	a := newTestAPI(t)
	classID := a.createClass(t, 1)
	alice := signToken(t, "1", middleware.RoleMember)
	bob := signToken(t, "2", middleware.RoleMember)

	rec := a.do(t, http.MethodPost, "/v1/classes/"+classID+"/join", alice, "")
	aliceRes := decode(t, rec)["reservation_id"].(float64)
	rec = a.do(t, http.MethodPost, "/v1/classes/"+classID+"/join", bob, "")
	bobRes := decode(t, rec)["reservation_id"].(float64)

	aliceResID := strconv.Itoa(int(aliceRes))
	bobResID := strconv.Itoa(int(bobRes))

	// Bob cannot cancel Alice's reservation.
	rec = a.do(t, http.MethodDelete, "/v1/reservations/"+aliceResID, bob, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign cancel: %d, want 403", rec.Code)
	}

	rec = a.do(t, http.MethodDelete, "/v1/reservations/"+aliceResID, alice, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body.String())
	}
	// Retry is a 404, not a second promotion.
	rec = a.do(t, http.MethodDelete, "/v1/reservations/"+aliceResID, alice, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cancel retry: %d, want 404", rec.Code)
	}

	// Bob now holds a pending offer.
	rec = a.do(t, http.MethodGet, "/v1/pending-offer", bob, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pending-offer: %d", rec.Code)
	}
	offer, ok := decode(t, rec)["offer"].(map[string]any)
	if !ok {
		t.Fatalf("offer missing: %s", rec.Body.String())
	}
	if offer["confirm_by"] == nil {
		t.Fatal("offer has no confirm_by deadline")
	}

	// Confirming someone else's hold is forbidden.
	rec = a.do(t, http.MethodPost, "/v1/reservations/"+bobResID+"/confirm", alice, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign confirm: %d, want 403", rec.Code)
	}
	rec = a.do(t, http.MethodPost, "/v1/reservations/"+bobResID+"/confirm", bob, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", rec.Code, rec.Body.String())
	}
	// A confirmed seat cannot be confirmed again.
	rec = a.do(t, http.MethodPost, "/v1/reservations/"+bobResID+"/confirm", bob, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("double confirm: %d, want 409", rec.Code)
	}

	rec = a.do(t, http.MethodGet, "/v1/classes/"+classID+"/status", bob, "")
	if got := decode(t, rec)["state"]; got != string(model.StatusConfirmed) {
		t.Fatalf("bob state=%v, want confirmed", got)
	}
	// The offer is gone once confirmed.
	rec = a.do(t, http.MethodGet, "/v1/pending-offer", bob, "")
	if v := decode(t, rec)["offer"]; v != nil {
		t.Fatalf("offer=%v after confirm, want null", v)
	}
}

func TestStatusEndpoint(t *testing.T) {
	a := newTestAPI(t)
	classID := a.createClass(t, 1)
	alice := signToken(t, "1", middleware.RoleMember)

	rec := a.do(t, http.MethodGet, "/v1/classes/"+classID+"/status", alice, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if got := decode(t, rec)["state"]; got != booking.StatusNone {
		t.Fatalf("state=%v, want none", got)
	}
	rec = a.do(t, http.MethodGet, "/v1/classes/777/status", alice, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown class status: %d, want 404", rec.Code)
	}
	rec = a.do(t, http.MethodGet, "/v1/classes/abc/status", alice, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad class id: %d, want 400", rec.Code)
	}
}

func TestStaffWalkInAndRoster(t *testing.T) {
	a := newTestAPI(t)
	classID := a.createClass(t, 1)
	staff := signToken(t, "1000", middleware.RoleStaff)
	alice := signToken(t, "1", middleware.RoleMember)

	rec := a.do(t, http.MethodPost, "/v1/classes/"+classID+"/join", alice, "")
	if rec.Code != http.StatusCreated {
		t.Fatal(rec.Code)
	}

	// Walk-in past capacity is accepted.
	rec = a.do(t, http.MethodPost, "/v1/classes/"+classID+"/walkins", staff, `{"user_id":55}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("walk-in: %d %s", rec.Code, rec.Body.String())
	}
	// Same member twice conflicts.
	rec = a.do(t, http.MethodPost, "/v1/classes/"+classID+"/walkins", staff, `{"user_id":55}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate walk-in: %d, want 409", rec.Code)
	}
	// Missing user_id.
	rec = a.do(t, http.MethodPost, "/v1/classes/"+classID+"/walkins", staff, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty walk-in: %d, want 400", rec.Code)
	}

	rec = a.do(t, http.MethodGet, "/v1/classes/"+classID+"/roster", staff, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("roster: %d", rec.Code)
	}
	body := decode(t, rec)
	if got := len(body["confirmed"].([]any)); got != 2 {
		t.Fatalf("confirmed=%d, want 2", got)
	}
	cls := body["class"].(map[string]any)
	if cls["occupied_count"] != float64(2) {
		t.Fatalf("occupied_count=%v, want 2", cls["occupied_count"])
	}
}

func TestListClassesAndMyReservations(t *testing.T) {
	a := newTestAPI(t)
	classID := a.createClass(t, 2)
	a.createClass(t, 3)
	staff := signToken(t, "1000", middleware.RoleStaff)
	alice := signToken(t, "1", middleware.RoleMember)

	rec := a.do(t, http.MethodGet, "/v1/classes", staff, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list classes: %d", rec.Code)
	}
	if got := len(decode(t, rec)["items"].([]any)); got != 2 {
		t.Fatalf("classes=%d, want 2", got)
	}

	rec = a.do(t, http.MethodPost, "/v1/classes/"+classID+"/join", alice, "")
	if rec.Code != http.StatusCreated {
		t.Fatal(rec.Code)
	}
	rec = a.do(t, http.MethodGet, "/v1/my-reservations", alice, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("my-reservations: %d", rec.Code)
	}
	if got := len(decode(t, rec)["items"].([]any)); got != 1 {
		t.Fatalf("items=%d, want 1", got)
	}
}
