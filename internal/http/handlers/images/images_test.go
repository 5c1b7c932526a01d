package images

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"testing"

	"github.com/tieredmedia/images-service/internal/http/middleware"
	"github.com/tieredmedia/images-service/internal/services/tiers"
	"github.com/tieredmedia/images-service/internal/services/uploads"
	"github.com/tieredmedia/images-service/internal/storage"
	"github.com/tieredmedia/images-service/internal/types"
	"github.com/tieredmedia/images-service/internal/types/media"
)

type fakeUploader struct {
	lastUserID   string
	lastDuration *int
	result       uploads.Result
	err          error
}

func (f *fakeUploader) Upload(ctx context.Context, userID, fileName, contentType string, image []byte, duration *int) (uploads.Result, error) {
	f.lastUserID = userID
	f.lastDuration = duration
	if f.err != nil {
		return uploads.Result{}, f.err
	}
	if userID == "" {
		return uploads.Result{}, uploads.ErrUnauthorized
	}
	if len(image) == 0 {
		return uploads.Result{}, uploads.ErrMissingImage
	}
	return f.result, nil
}

type fakeStorage struct {
	users map[string]types.User
	media map[string][]media.Media
}

func (f *fakeStorage) GetUserByID(ctx context.Context, id string) (types.User, error) {
	u, ok := f.users[id]
	if !ok {
		return types.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeStorage) ListMediaByOwner(ctx context.Context, ownerID string) ([]media.Media, error) {
	return f.media[ownerID], nil
}

type fakePolicy struct {
	caps types.Capabilities
	err  error
}

func (f *fakePolicy) CapabilitiesFor(ctx context.Context, user types.User) (types.Capabilities, error) {
	if f.err != nil {
		return types.Capabilities{}, f.err
	}
	return f.caps, nil
}

type fakeResolver struct{}

func (fakeResolver) URL(key string) string { return "http://blobs.test/" + key }

func newTestHandlers(uploader *fakeUploader, store *fakeStorage, policy *fakePolicy) *Handlers {
	return NewHandlers(uploader, store, policy, fakeResolver{}, "http://api.test", 10<<20)
}

func multipartUpload(t *testing.T, withImage bool, expiredTime string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if withImage {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="image"; filename="test.jpg"`)
		header.Set("Content-Type", "image/jpeg")
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("failed to create image part: %v", err)
		}
		part.Write([]byte("fake jpeg bytes"))
	}

	if expiredTime != "" {
		writer.WriteField("expired_time", expiredTime)
	}

	writer.Close()
	return &body, writer.FormDataContentType()
}

func authedRequest(method, target string, body *bytes.Buffer, userID string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if userID != "" {
		ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
		req = req.WithContext(ctx)
	}
	return req
}

func TestUpload_Created(t *testing.T) {
	uploader := &fakeUploader{result: uploads.Result{
		ID:            "m1",
		Owner:         "u1",
		ThumbnailLink: "http://blobs.test/small.jpg",
	}}
	h := newTestHandlers(uploader, &fakeStorage{}, &fakePolicy{})

	body, contentType := multipartUpload(t, true, "")
	req := authedRequest(http.MethodPost, "/upload", body, "u1")
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload()(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["id"] != "m1" || result["owner"] != "u1" || result["thumbnail_link"] == "" {
		t.Errorf("unexpected response: %v", result)
	}
	if _, ok := result["image"]; ok {
		t.Error("basic-tier response must not contain image")
	}
	if _, ok := result["expired_time"]; ok {
		t.Error("basic-tier response must not contain expired_time")
	}
}

func TestUpload_PassesDuration(t *testing.T) {
	uploader := &fakeUploader{result: uploads.Result{ID: "m1", Owner: "u1"}}
	h := newTestHandlers(uploader, &fakeStorage{}, &fakePolicy{})

	body, contentType := multipartUpload(t, true, "3600")
	req := authedRequest(http.MethodPost, "/upload", body, "u1")
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload()(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if uploader.lastDuration == nil || *uploader.lastDuration != 3600 {
		t.Errorf("duration not forwarded: %v", uploader.lastDuration)
	}
}

func TestUpload_Anonymous(t *testing.T) {
	h := newTestHandlers(&fakeUploader{}, &fakeStorage{}, &fakePolicy{})

	body, contentType := multipartUpload(t, true, "")
	req := authedRequest(http.MethodPost, "/upload", body, "")
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload()(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("anonymous upload: status = %d, want 400", rec.Code)
	}
}

func TestUpload_MissingImage(t *testing.T) {
	h := newTestHandlers(&fakeUploader{}, &fakeStorage{}, &fakePolicy{})

	body, contentType := multipartUpload(t, false, "")
	req := authedRequest(http.MethodPost, "/upload", body, "u1")
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload()(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing image: status = %d, want 400", rec.Code)
	}
}

func TestUpload_BadDuration(t *testing.T) {
	h := newTestHandlers(&fakeUploader{}, &fakeStorage{}, &fakePolicy{})

	body, contentType := multipartUpload(t, true, "soon")
	req := authedRequest(http.MethodPost, "/upload", body, "u1")
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload()(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-integer expired_time: status = %d, want 400", rec.Code)
	}
}

func TestUploadErrorStatus(t *testing.T) {
	for _, err := range []error{
		uploads.ErrUnauthorized,
		uploads.ErrMissingImage,
		uploads.ErrUnsupportedFormat,
		uploads.ErrMissingDuration,
		uploads.ErrInvalidDuration,
		tiers.ErrNoTier,
	} {
		if got := uploadErrorStatus(err); got != http.StatusBadRequest {
			t.Errorf("uploadErrorStatus(%v) = %d, want 400", err, got)
		}
	}
}

func TestList_Empty(t *testing.T) {
	store := &fakeStorage{
		users: map[string]types.User{"u1": {ID: "u1", Username: "user", TierID: "basic"}},
		media: map[string][]media.Media{},
	}
	h := newTestHandlers(&fakeUploader{}, store, &fakePolicy{})

	req := authedRequest(http.MethodGet, "/images", nil, "u1")
	rec := httptest.NewRecorder()

	h.List()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("empty listing body = %q, want []", got)
	}
}

func TestList_ProjectsRecords(t *testing.T) {
	store := &fakeStorage{
		users: map[string]types.User{"u1": {ID: "u1", Username: "user", TierID: "premium"}},
		media: map[string][]media.Media{"u1": {
			{ID: "m1", OwnerID: "u1", OriginalKey: "orig", Thumb200Key: "k200", Thumb400Key: "k400"},
			{ID: "m2", OwnerID: "u1", Thumb200Key: "k200b", TokenValue: "tok", ExpiredTime: 600},
		}},
	}
	policy := &fakePolicy{caps: types.Capabilities{Thumbnails: true, OriginalPhoto: true}}
	h := newTestHandlers(&fakeUploader{}, store, policy)

	req := authedRequest(http.MethodGet, "/images", nil, "u1")
	rec := httptest.NewRecorder()

	h.List()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var items []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d records, want 2", len(items))
	}

	if items[0]["image"] != "http://blobs.test/orig" || items[0]["owner"] != "u1" {
		t.Errorf("entitled viewer projection missing image/owner: %v", items[0])
	}
	if items[1]["expired_link"] != "http://api.test/token/tok" {
		t.Errorf("expiring-link projection: %v", items[1])
	}
	if got := items[1]["expired_time"]; got != float64(600) {
		t.Errorf("expired_time = %v, want 600", got)
	}
}

func TestList_ViewerWithoutTier(t *testing.T) {
	store := &fakeStorage{
		users: map[string]types.User{"u1": {ID: "u1", Username: "user"}},
		media: map[string][]media.Media{"u1": {
			{ID: "m1", OwnerID: "u1", OriginalKey: "orig", Thumb200Key: "k200"},
		}},
	}
	policy := &fakePolicy{err: tiers.ErrNoTier}
	h := newTestHandlers(&fakeUploader{}, store, policy)

	req := authedRequest(http.MethodGet, "/images", nil, "u1")
	rec := httptest.NewRecorder()

	h.List()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var items []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, ok := items[0]["image"]; ok {
		t.Error("tierless viewer must not see the original link")
	}
	if _, ok := items[0]["owner"]; ok {
		t.Error("tierless viewer must not see the owner")
	}
}

func TestList_RequiresAuth(t *testing.T) {
	h := newTestHandlers(&fakeUploader{}, &fakeStorage{}, &fakePolicy{})
	protected := middleware.RequireAuth("secret")(h.List())

	req := httptest.NewRequest(http.MethodGet, "/images", nil)
	rec := httptest.NewRecorder()

	protected.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("unauthenticated listing: status = %d, want 403", rec.Code)
	}
}

func TestUpload_RespectsMaxSize(t *testing.T) {
	uploader := &fakeUploader{result: uploads.Result{ID: "m1", Owner: "u1"}}
	store := &fakeStorage{}
	h := NewHandlers(uploader, store, &fakePolicy{}, fakeResolver{}, "http://api.test", 16)

	// A payload larger than the configured cap is rejected up front.
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="image"; filename="big.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, _ := writer.CreatePart(header)
	part.Write(bytes.Repeat([]byte("x"), 1024))
	writer.Close()

	req := authedRequest(http.MethodPost, "/upload", &body, "u1")
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Content-Length", strconv.Itoa(body.Len()))
	rec := httptest.NewRecorder()

	h.Upload()(rec, req)

	if rec.Code == http.StatusCreated {
		t.Error("oversized upload must not succeed")
	}
}
