package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/printflowhq/printshop_backend/utils"
)

// authSeen captures what a downstream handler observes in the request
// context after the middleware ran.
type authSeen struct {
	called   bool
	claims   *utils.JwtCustomClaim
	token    string
	shopId   string
	username string
	userId   int
}

func newAuthRouter(seen *authSeen) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(AuthMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		seen.called = true
		ctx := c.Request.Context()
		seen.claims = CtxValue(ctx)
		seen.token, _ = utils.GetTokenFromContext(ctx)
		seen.shopId, _ = utils.GetShopIdFromContext(ctx)
		seen.username, _ = utils.GetUsernameFromContext(ctx)
		seen.userId, _ = utils.GetUserIdFromContext(ctx)
		c.Status(http.StatusOK)
	})
	return r
}

func serveAuth(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestShortAuthorizationHeaderIsRejected(t *testing.T) {
	seen := &authSeen{}
	w := serveAuth(newAuthRouter(seen), "x")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed header, got %d", w.Code)
	}
	if seen.called {
		t.Fatal("handler ran behind a malformed Authorization header")
	}
}

func TestMissingHeaderPassesThroughAnonymously(t *testing.T) {
	seen := &authSeen{}
	w := serveAuth(newAuthRouter(seen), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !seen.called || seen.claims != nil {
		t.Fatalf("anonymous request handled wrong: called=%v claims=%+v", seen.called, seen.claims)
	}
}

func TestGarbageBearerTokenIsRejected(t *testing.T) {
	seen := &authSeen{}
	w := serveAuth(newAuthRouter(seen), "Bearer not-a-token")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if seen.called {
		t.Fatal("handler ran behind an invalid token")
	}
}

func TestValidBearerTokenPopulatesContext(t *testing.T) {
	t.Setenv("TOKEN_HOUR_LIFESPAN", "1")

	token, err := utils.JwtGenerate(7, "shop-1", "operator")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	seen := &authSeen{}
	w := serveAuth(newAuthRouter(seen), "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if seen.claims == nil || seen.claims.ShopId != "shop-1" || seen.claims.Role != "operator" {
		t.Fatalf("claims wrong: %+v", seen.claims)
	}
	if seen.userId != 7 || seen.shopId != "shop-1" {
		t.Fatalf("context wrong: userId=%d shopId=%q", seen.userId, seen.shopId)
	}
	if seen.token != token {
		t.Fatal("raw token not carried in context")
	}
}
