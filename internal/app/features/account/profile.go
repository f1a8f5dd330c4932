// internal/app/features/account/profile.go
package account

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	userstore "github.com/dalemusser/groupsnap/internal/app/store/users"
	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
	"github.com/dalemusser/groupsnap/internal/app/system/imagenorm"
	"github.com/dalemusser/groupsnap/internal/app/system/inputval"
	"github.com/dalemusser/groupsnap/internal/app/system/limits"
	"github.com/dalemusser/groupsnap/internal/app/system/objectstore"
	"github.com/dalemusser/groupsnap/internal/app/system/timeouts"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// PhotoField is the multipart field carrying a new profile photo.
const PhotoField = "profilePhoto"

type profileRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=3,max=20" label:"Name"`
	Username *string `json:"username" validate:"omitempty,min=3,max=20" label:"Username"`
	Email    *string `json:"email" validate:"omitempty,email,max=50" label:"Email"`
}

type photoUpload struct {
	contentType string
	data        []byte
}

// HandleUpdateProfile changes the caller's name, username, email and
// profile photo. The body is JSON, or multipart when a photo is sent.
// Google accounts keep the email their provider vouched for.
func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r)
	if !ok {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Please login to get access"))
		return
	}

	req, photo, err := h.readProfile(w, r)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	req.Name, req.Username, req.Email = blankToNil(req.Name), blankToNil(req.Username), blankToNil(req.Email)
	if err := inputval.Check(req); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Upload(), h.Log, "account.profile")
	defer cancel()

	current, err := h.Users.GetByID(ctx, actor.ID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("The user belonging to this token does no longer exist"))
		return
	}
	if err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not load user", err))
		return
	}

	up := userstore.ProfileUpdate{Name: req.Name, Username: req.Username, Email: req.Email}
	if current.AuthProvider == models.AuthProviderGoogle {
		up.Email = nil
	}
	if photo != nil {
		stored, err := h.storePhoto(ctx, actor, photo)
		if err != nil {
			httpjson.WriteError(w, r, h.Log, err)
			return
		}
		up.Photo = &stored
	}
	if up.Empty() {
		httpjson.WriteError(w, r, h.Log, apperr.Validation("Nothing to update"))
		return
	}

	u, err := h.Users.UpdateProfile(ctx, actor.ID, up)
	if err != nil {
		if up.Photo != nil {
			h.dropPhoto(ctx, actor, up.Photo.Key)
		}
		switch {
		case errors.Is(err, userstore.ErrDuplicateUsername):
			httpjson.WriteError(w, r, h.Log, apperr.Conflict("Username is already taken"))
		case errors.Is(err, userstore.ErrDuplicateEmail):
			httpjson.WriteError(w, r, h.Log, apperr.Conflict("Email is already taken"))
		default:
			httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not update profile", err))
		}
		return
	}
	if up.Photo != nil && current.ProfilePhoto != nil && current.ProfilePhoto.Key != up.Photo.Key {
		h.dropPhoto(ctx, actor, current.ProfilePhoto.Key)
	}

	h.Log.Info("profile updated", zap.String("user_id", actor.ID.Hex()), zap.Bool("photo", up.Photo != nil))
	httpjson.OK(w, http.StatusOK, map[string]any{"user": u})
}

func (h *Handler) readProfile(w http.ResponseWriter, r *http.Request) (profileRequest, *photoUpload, error) {
	var req profileRequest
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		if err := httpjson.DecodeJSON(w, r, &req); err != nil {
			return req, nil, err
		}
		return req, nil, nil
	}
	return readProfileForm(w, r)
}

// readProfileForm reads the text fields and at most one photo from a
// multipart body.
func readProfileForm(w http.ResponseWriter, r *http.Request) (profileRequest, *photoUpload, error) {
	var req profileRequest
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxUploadFileSize+1<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		return req, nil, apperr.Validation("Malformed upload")
	}

	var photo *photoUpload
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return req, nil, formError(err)
		}

		name := part.FormName()
		if name == PhotoField && part.FileName() != "" {
			data, err := io.ReadAll(io.LimitReader(part, limits.MaxUploadFileSize+1))
			_ = part.Close()
			if err != nil {
				return req, nil, formError(err)
			}
			if len(data) > limits.MaxUploadFileSize {
				return req, nil, apperr.ErrFileTooLarge
			}
			photo = &photoUpload{contentType: partType(part.Header.Get("Content-Type"), data), data: data}
			continue
		}

		var dst **string
		switch name {
		case "name":
			dst = &req.Name
		case "username":
			dst = &req.Username
		case "email":
			dst = &req.Email
		default:
			_ = part.Close()
			continue
		}
		v, err := io.ReadAll(io.LimitReader(part, 256))
		_ = part.Close()
		if err != nil {
			return req, nil, formError(err)
		}
		s := string(v)
		*dst = &s
	}
	return req, photo, nil
}

func formError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return apperr.ErrFileTooLarge
	}
	return apperr.Validation("Malformed upload")
}

func partType(declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return strings.ToLower(mt)
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

// storePhoto crops the upload to a square JPEG and writes it under the
// user's prefix.
func (h *Handler) storePhoto(ctx context.Context, actor models.Actor, p *photoUpload) (models.ProfilePhoto, error) {
	if h.Blobs == nil {
		return models.ProfilePhoto{}, apperr.Validation("Profile photos are not enabled")
	}
	if !imagenorm.Allowed(p.contentType) {
		return models.ProfilePhoto{}, apperr.ErrUnsupportedType
	}
	res, err := h.Photos.Avatar(p.data, p.contentType)
	if err != nil {
		return models.ProfilePhoto{}, apperr.Validation("Could not process profile photo")
	}
	key := objectstore.NewProfileKey(actor.ID, time.Now().UTC(), res.Ext)
	obj, err := h.Blobs.Put(ctx, key, bytes.NewReader(res.Data), int64(len(res.Data)), res.ContentType)
	if err != nil {
		return models.ProfilePhoto{}, apperr.Upstream("Could not store profile photo", err)
	}
	return models.ProfilePhoto{URL: obj.URL, Key: obj.Key}, nil
}

// dropPhoto removes a photo that is no longer referenced. Failures are left
// for the operator; the profile change itself already succeeded or failed.
func (h *Handler) dropPhoto(ctx context.Context, actor models.Actor, key string) {
	if h.Blobs == nil || key == "" {
		return
	}
	if err := h.Blobs.Delete(ctx, key); err != nil {
		h.Log.Warn("profile photo delete failed",
			zap.String("user_id", actor.ID.Hex()), zap.String("key", key), zap.Error(err))
	}
}

// blankToNil treats an empty or whitespace-only field as not sent.
func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
