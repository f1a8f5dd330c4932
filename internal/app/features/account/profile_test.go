package account_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/dalemusser/groupsnap/internal/app/features/account"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"github.com/dalemusser/groupsnap/internal/testutil"
)

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: 20, G: 120, B: 220, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// profileForm builds a multipart PATCH with the given text fields and an
// optional photo.
func profileForm(t *testing.T, fields map[string]string, contentType string, photo []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if photo != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="me.png"`, account.PhotoField))
		hdr.Set("Content-Type", contentType)
		pw, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		_, _ = pw.Write(photo)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPatch, "/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func patchJSON(body string, c *http.Cookie) *http.Request {
	req := testutil.NewJSONRequest(http.MethodPatch, "/", body)
	req.AddCookie(c)
	return req
}

func TestUpdateProfile_JSON(t *testing.T) {
	e := newEnv(t)
	cookie := authCookie(t, e.do(testutil.NewJSONRequest(http.MethodPost, "/register", aliceSignup)))
	e.users.Add("bobby")

	tests := []struct {
		name string
		body string
		want int
		msg  string
	}{
		{"rename", `{"name":"Alice Cooper","username":"alicia"}`, http.StatusOK, `"username":"alicia"`},
		{"blank fields are ignored", `{"name":"  ","email":"new@example.com"}`, http.StatusOK, `"name":"Alice Cooper"`},
		{"nothing to change", `{}`, http.StatusBadRequest, "Nothing to update"},
		{"short username", `{"username":"al"}`, http.StatusBadRequest, "Username must be at least 3 characters long"},
		{"bad email", `{"email":"nope"}`, http.StatusBadRequest, "Please provide a valid email"},
		{"taken username", `{"username":"BOBBY"}`, http.StatusConflict, "Username is already taken"},
		{"taken email", `{"email":"bobby@example.com"}`, http.StatusConflict, "Email is already taken"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(patchJSON(tc.body, cookie))
			rec.AssertStatus(t, tc.want)
			rec.AssertContains(t, tc.msg)
		})
	}

	u, err := e.users.GetByUsername(context.Background(), "alicia")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if u.Email != "new@example.com" || u.Name != "Alice Cooper" {
		t.Errorf("stored user = %+v", u)
	}
}

func TestUpdateProfile_RequiresSignIn(t *testing.T) {
	e := newEnv(t)
	rec := e.do(testutil.NewJSONRequest(http.MethodPatch, "/", `{"name":"Someone"}`))
	rec.AssertStatus(t, http.StatusUnauthorized)
}

func TestUpdateProfile_PhotoReplacesPrevious(t *testing.T) {
	e := newEnv(t)
	cookie := authCookie(t, e.do(testutil.NewJSONRequest(http.MethodPost, "/register", aliceSignup)))

	req := profileForm(t, map[string]string{"name": "Alice L"}, "image/png", pngImage(t, 40, 20))
	req.AddCookie(cookie)
	rec := e.do(req)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"name":"Alice L"`)
	rec.AssertContains(t, `"profilePhoto":{"url":"https://cdn.example.com/users/`)

	first := e.blobs.Keys()
	if len(first) != 1 || !strings.HasSuffix(first[0], ".jpeg") {
		t.Fatalf("stored keys = %v, want one jpeg", first)
	}

	req = profileForm(t, nil, "image/png", pngImage(t, 10, 30))
	req.AddCookie(cookie)
	e.do(req).AssertStatus(t, http.StatusOK)

	second := e.blobs.Keys()
	if len(second) != 1 || second[0] == first[0] {
		t.Errorf("after replacement keys = %v, want one new key replacing %s", second, first[0])
	}
	u, _ := e.users.GetByUsername(context.Background(), "alice")
	if u.ProfilePhoto == nil || u.ProfilePhoto.Key != second[0] {
		t.Errorf("ProfilePhoto = %+v, want key %s", u.ProfilePhoto, second[0])
	}
}

func TestUpdateProfile_PhotoRejected(t *testing.T) {
	e := newEnv(t)
	cookie := authCookie(t, e.do(testutil.NewJSONRequest(http.MethodPost, "/register", aliceSignup)))

	tests := []struct {
		name        string
		contentType string
		body        []byte
		msg         string
	}{
		{"unsupported type", "image/gif", []byte("GIF89a...."), "Invalid file type"},
		{"undecodable", "image/png", []byte("not really a png"), "Could not process profile photo"},
		{"too large", "image/png", bytes.Repeat([]byte{1}, 1<<20+1), "File size too large"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := profileForm(t, nil, tc.contentType, tc.body)
			req.AddCookie(cookie)
			rec := e.do(req)
			rec.AssertStatus(t, http.StatusBadRequest)
			rec.AssertContains(t, tc.msg)
		})
	}
	if keys := e.blobs.Keys(); len(keys) != 0 {
		t.Errorf("rejected uploads were stored: %v", keys)
	}
}

func TestUpdateProfile_FailedSaveDropsNewPhoto(t *testing.T) {
	e := newEnv(t)
	cookie := authCookie(t, e.do(testutil.NewJSONRequest(http.MethodPost, "/register", aliceSignup)))
	e.users.FailOn("UpdateProfile", errors.New("write failed"))

	req := profileForm(t, nil, "image/png", pngImage(t, 8, 8))
	req.AddCookie(cookie)
	e.do(req).AssertStatus(t, http.StatusInternalServerError)
	if keys := e.blobs.Keys(); len(keys) != 0 {
		t.Errorf("orphaned photo left behind: %v", keys)
	}
}

func TestUpdateProfile_GoogleAccountKeepsEmail(t *testing.T) {
	e := newEnv(t)
	g, err := e.users.Create(context.Background(), models.User{
		Username:     "gina",
		Name:         "Gina",
		Email:        "gina@gmail.com",
		AuthProvider: models.AuthProviderGoogle,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	cookie := e.signIn(t, g.ID.Hex())

	rec := e.do(patchJSON(`{"name":"Gina G","email":"other@example.com"}`, cookie))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"email":"gina@gmail.com"`)
	rec.AssertContains(t, `"name":"Gina G"`)
}
