package handler

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/medforum_server/config"
	"github.com/qs3c/medforum_server/internal/model"
	"github.com/qs3c/medforum_server/internal/pkg/identity"
	"github.com/qs3c/medforum_server/internal/pkg/response"
	"github.com/qs3c/medforum_server/internal/service"
)

type stubUploader struct {
	err error
}

func (u stubUploader) UploadImage(userID string, data []byte, ext string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	return "https://cdn.example.com/comment-images/" + userID + "/img" + ext, nil
}

func imageRouter(uploader service.Uploader, user *identity.User) *gin.Engine {
	cfg := &config.Config{Upload: config.UploadConfig{MaxSize: 64}}
	h := NewImageHandler(service.NewImageService(uploader, identity.Static{User: user}, cfg, nil))

	router := gin.New()
	router.POST("/images", h.Upload)
	return router
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if field != "" {
		part, err := writer.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/images", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestImageHandler_Upload(t *testing.T) {
	doctor := &identity.User{ID: "doc-1", Role: model.RoleDoctor}
	patient := &identity.User{ID: "pat-1", Role: model.RoleUser}

	tests := []struct {
		name     string
		uploader service.Uploader
		user     *identity.User
		field    string
		filename string
		content  []byte
		wantCode int
	}{
		{"success", stubUploader{}, doctor, "file", "xray.png", []byte("png-bytes"), response.CodeSuccess},
		{"missing file", stubUploader{}, doctor, "", "", nil, response.CodeParamError},
		{"too large", stubUploader{}, doctor, "file", "big.png", bytes.Repeat([]byte("a"), 65), response.CodeParamError},
		{"wrong type", stubUploader{}, doctor, "file", "notes.txt", []byte("text"), response.CodeParamError},
		{"not allowed", stubUploader{}, patient, "file", "xray.png", []byte("png"), response.CodePermissionDenied},
		{"anonymous", stubUploader{}, nil, "file", "xray.png", []byte("png"), response.CodePermissionDenied},
		{"storage failure", stubUploader{err: errors.New("bucket gone")}, doctor, "file", "xray.png", []byte("png"), response.CodeStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			imageRouter(tt.uploader, tt.user).ServeHTTP(w, multipartRequest(t, tt.field, tt.filename, tt.content))

			resp := parseResponse(t, w)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantCode == response.CodeSuccess {
				data := resp.Data.(map[string]interface{})
				assert.Equal(t, "https://cdn.example.com/comment-images/doc-1/img.png", data["url"])
			}
		})
	}
}
