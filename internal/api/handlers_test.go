package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Soulfra/soulfra.github.io-sub005/internal/dispatch"
	"github.com/Soulfra/soulfra.github.io-sub005/internal/router"
)

func routeErrorStatus(t *testing.T, err error) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h := &Handlers{}
	h.writeRouteError(c, "caller-1", err)
	return w.Code
}

func TestWriteRouteError_NoEligibleProvider(t *testing.T) {
	err := &router.NoEligibleProviderError{CallerID: "caller-1", TrustScore: 10}
	if code := routeErrorStatus(t, err); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}

func TestWriteRouteError_TrustUnavailable(t *testing.T) {
	err := &router.TrustUnavailableError{CallerID: "caller-1", Err: errors.New("identity down")}
	if code := routeErrorStatus(t, err); code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", code)
	}
}

func TestWriteRouteError_Exhausted(t *testing.T) {
	err := &dispatch.ExhaustedError{Attempts: 3, LastErr: errors.New("upstream status 500")}
	if code := routeErrorStatus(t, err); code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", code)
	}
}

func TestWriteRouteError_Deadline(t *testing.T) {
	err := &dispatch.DeadlineError{Attempts: 2}
	if code := routeErrorStatus(t, err); code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", code)
	}
}

func TestWriteRouteError_Unknown(t *testing.T) {
	if code := routeErrorStatus(t, errors.New("surprise")); code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", code)
	}
}
