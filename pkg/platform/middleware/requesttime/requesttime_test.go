package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"zkcred/pkg/requestcontext"
)

func TestMiddleware_SetsTimeInContext(t *testing.T) {
	var capturedTime time.Time
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedTime = requestcontext.Now(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	before := time.Now()
	handler.ServeHTTP(w, req)
	after := time.Now()

	assert.False(t, capturedTime.IsZero())
	assert.True(t, !capturedTime.Before(before), "captured time should be >= before")
	assert.True(t, !capturedTime.After(after), "captured time should be <= after")
}

func TestMiddleware_TimeIsConsistentWithinRequest(t *testing.T) {
	var firstRead, secondRead time.Time
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstRead = requestcontext.Now(r.Context())
		time.Sleep(10 * time.Millisecond)
		secondRead = requestcontext.Now(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, firstRead, secondRead, "time should be consistent within request")
}
