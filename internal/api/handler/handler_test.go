package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/medforum_server/config"
	"github.com/qs3c/medforum_server/internal/api/middleware"
	"github.com/qs3c/medforum_server/internal/pkg/docstore"
	"github.com/qs3c/medforum_server/internal/pkg/identity"
	"github.com/qs3c/medforum_server/internal/pkg/response"
	"github.com/qs3c/medforum_server/internal/repository"
	"github.com/qs3c/medforum_server/internal/service"
	"github.com/qs3c/medforum_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testContext 本地测试上下文
type testContext struct {
	DB    *gorm.DB
	Store *docstore.GormStore
}

func setupCommentService(t *testing.T) (*service.CommentService, *testContext) {
	t.Helper()

	store, db := testutil.SetupTestStore(t)
	commentService := service.NewCommentService(
		store,
		repository.NewCommentRepository(store),
		repository.NewUserRepository(store),
		repository.NewPostRepository(store),
		identity.NewStoreProvider(store),
		&config.Config{},
		nil,
	)
	return commentService, &testContext{DB: db, Store: store}
}

// mockAuth 模拟认证中间件
func mockAuth(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Request = c.Request.WithContext(identity.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}
