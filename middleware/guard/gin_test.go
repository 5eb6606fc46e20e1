package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"abuse-gateway/middleware/guard/application"

	"github.com/gin-gonic/gin"
)

func newGinEngine(g *Guard, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(g.Gin())
	r.GET("/ok", func(c *gin.Context) {
		*calls++
		c.String(http.StatusOK, "ok")
	})
	r.GET("/boom", func(c *gin.Context) {
		*calls++
		c.Status(http.StatusInternalServerError)
	})
	return r
}

func serveGin(e *gin.Engine, ip, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":4321"
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestGin_RateLimitAbortsChain(t *testing.T) {
	g, _ := newGuard(application.Policy{Limit: 1}, nil)
	calls := 0
	e := newGinEngine(g, &calls)

	if w := serveGin(e, "10.0.0.1", "/ok"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	} else if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected rate headers on admitted response")
	}

	w := serveGin(e, "10.0.0.1", "/ok")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if calls != 1 {
		t.Fatalf("expected handler called once, got %d", calls)
	}
}

func TestGin_UnmatchedRoutesFeedNotFoundBlock(t *testing.T) {
	g, _ := newGuard(application.DefaultPolicy(), func(o *Options) {
		o.SilentBlocking = true
	})
	calls := 0
	e := newGinEngine(g, &calls)

	for i := 0; i < 5; i++ {
		if w := serveGin(e, "1.2.3.4", "/admin.php"); w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	}

	w := serveGin(e, "1.2.3.4", "/ok")
	if w.Code != defaultSilentStatus {
		t.Fatalf("expected silent block, got %d", w.Code)
	}
	if calls != 0 {
		t.Fatalf("expected blocked client not to reach handler")
	}
}

func TestGin_ServerErrorsCountTowardBlock(t *testing.T) {
	g, _ := newGuard(application.Policy{ErrorThreshold: 2, ErrorBlockDuration: time.Minute}, nil)
	calls := 0
	e := newGinEngine(g, &calls)

	serveGin(e, "5.5.5.5", "/boom")
	serveGin(e, "5.5.5.5", "/boom")

	st := g.Service().IsBlocked("5.5.5.5", t0)
	if !st.Blocked || st.Remaining != time.Minute {
		t.Fatalf("expected one minute block, got %+v", st)
	}
}
