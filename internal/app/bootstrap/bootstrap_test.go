package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig(t *testing.T) AppConfig {
	t.Helper()
	return AppConfig{
		MongoURI:            "mongodb://127.0.0.1:1",
		MongoDatabase:       "groupsnap_test",
		MongoMaxPoolSize:    10,
		MongoMinPoolSize:    1,
		JWTSecret:           "test-secret",
		JWTTTL:              time.Hour,
		FrontendURL:         "http://localhost:5173",
		StorageType:         "local",
		StorageLocalPath:    t.TempDir(),
		StorageLocalURL:     "/files",
		RateLimitPerHour:    1000,
		OrphanSweepInterval: 0,
		WSWriteTimeout:      time.Second,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid local", func(*AppConfig) {}, ""},
		{"valid s3", func(c *AppConfig) {
			c.StorageType = "s3"
			c.StorageS3Bucket = "photos"
			c.StorageS3Region = "us-east-1"
		}, ""},
		{"bad mongo uri", func(c *AppConfig) { c.MongoURI = "postgres://nope" }, "invalid MongoDB URI"},
		{"missing database", func(c *AppConfig) { c.MongoDatabase = "" }, "mongo_database"},
		{"missing jwt secret", func(c *AppConfig) { c.JWTSecret = "  " }, "jwt_secret"},
		{"non-positive ttl", func(c *AppConfig) { c.JWTTTL = 0 }, "jwt_ttl"},
		{"pool sizes inverted", func(c *AppConfig) { c.MongoMinPoolSize = 50 }, "mongo_min_pool_size"},
		{"s3 without bucket", func(c *AppConfig) {
			c.StorageType = "s3"
			c.StorageS3Region = "us-east-1"
		}, "storage_s3_bucket"},
		{"local url without slash", func(c *AppConfig) { c.StorageLocalURL = "files" }, "storage_local_url"},
		{"unknown storage", func(c *AppConfig) { c.StorageType = "ftp" }, "unknown storage_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := ValidateConfig(&config.CoreConfig{}, cfg, testLogger())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	got := allowedOrigins(" http://a.test/ ,,https://b.test ")
	want := []string{"http://a.test", "https://b.test"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("origin[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

type fakeExister struct {
	members map[[2]primitive.ObjectID]bool
	err     error
	calls   int
}

func (f *fakeExister) Exists(_ context.Context, groupID, userID primitive.ObjectID) (bool, error) {
	f.calls++
	return f.members[[2]primitive.ObjectID{groupID, userID}], f.err
}

func TestMemberChecker(t *testing.T) {
	group, user := primitive.NewObjectID(), primitive.NewObjectID()
	ex := &fakeExister{members: map[[2]primitive.ObjectID]bool{{group, user}: true}}
	mc := memberChecker{store: ex}
	ctx := context.Background()

	if ok, err := mc.IsMember(ctx, group.Hex(), user.Hex()); err != nil || !ok {
		t.Fatalf("member: ok=%v err=%v", ok, err)
	}
	if ok, _ := mc.IsMember(ctx, group.Hex(), primitive.NewObjectID().Hex()); ok {
		t.Error("stranger reported as member")
	}

	calls := ex.calls
	if ok, err := mc.IsMember(ctx, "not-hex", user.Hex()); ok || err != nil {
		t.Errorf("bad group id: ok=%v err=%v", ok, err)
	}
	if ok, err := mc.IsMember(ctx, group.Hex(), "nope"); ok || err != nil {
		t.Errorf("bad user id: ok=%v err=%v", ok, err)
	}
	if ex.calls != calls {
		t.Error("malformed ids should not reach the store")
	}

	ex.err = errors.New("boom")
	if _, err := mc.IsMember(ctx, group.Hex(), user.Hex()); err == nil {
		t.Error("store error should propagate")
	}
}

type fakeResolver struct {
	user *auth.SessionUser
	err  error
}

func (f fakeResolver) Resolve(context.Context, string) (*auth.SessionUser, error) {
	return f.user, f.err
}

func TestGatewayAuthenticator(t *testing.T) {
	ctx := context.Background()
	u := &auth.SessionUser{ID: primitive.NewObjectID().Hex(), Username: "alice", Name: "Alice"}

	id, err := gatewayAuthenticator(fakeResolver{user: u}).Authenticate(ctx, "tok")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.UserID != u.ID || id.Username != "alice" || id.Name != "Alice" {
		t.Errorf("identity = %+v", id)
	}

	if _, err := gatewayAuthenticator(fakeResolver{err: errors.New("expired")}).Authenticate(ctx, "tok"); err == nil {
		t.Error("expected resolver error")
	}
}

// lazyDatabase returns a database handle whose client never reaches a
// server. Requests that do not touch storage work normally.
func lazyDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	client, err := mongo.Connect(context.Background(), options.Client().
		ApplyURI("mongodb://127.0.0.1:1").
		SetServerSelectionTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatalf("mongo.Connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client.Database("groupsnap_test")
}

func TestLifecycle_RouterWiring(t *testing.T) {
	cfg := validConfig(t)
	core := &config.CoreConfig{}
	deps := DBDeps{MongoDatabase: lazyDatabase(t)}
	ctx := context.Background()

	if err := Startup(ctx, core, cfg, deps, testLogger()); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	h, err := BuildHandler(core, cfg, deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler: %v", err)
	}
	c := current()

	obj, err := c.blobs.Put(ctx, "groups/abc/2026/01/x.jpeg", strings.NewReader("jpeg-bytes"), 10, "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"health without database", http.MethodGet, "/health", http.StatusServiceUnavailable, "disconnected"},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "go_goroutines"},
		{"me requires login", http.MethodGet, APIPrefix + "/user", http.StatusUnauthorized, "Please login"},
		{"groups require login", http.MethodGet, APIPrefix + "/group", http.StatusUnauthorized, "Please login"},
		{"images require login", http.MethodGet, APIPrefix + "/group/" + primitive.NewObjectID().Hex() + "/image", http.StatusUnauthorized, "Please login"},
		{"invites require login", http.MethodGet, APIPrefix + "/invite", http.StatusUnauthorized, "Please login"},
		{"unknown api route", http.MethodGet, APIPrefix + "/nope", http.StatusNotFound, "Can't find"},
		{"ws without token", http.MethodGet, "/ws?groupId=" + primitive.NewObjectID().Hex(), http.StatusUnauthorized, "Authentication required"},
		{"ws without group", http.MethodGet, "/ws", http.StatusBadRequest, "groupId is required"},
		{"local file", http.MethodGet, obj.URL, http.StatusOK, "jpeg-bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, APIPrefix+"/group", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Allow-Credentials = %q", got)
		}
	})

	if err := Shutdown(ctx, core, cfg, deps, testLogger()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := c.gateway.Broadcast(primitive.NewObjectID().Hex(), "groupDelete", nil); err == nil {
		t.Error("gateway should be closed after Shutdown")
	}
}

func TestBuildHandler_BeforeStartup(t *testing.T) {
	appMu.Lock()
	saved := running
	running = nil
	appMu.Unlock()
	t.Cleanup(func() {
		appMu.Lock()
		running = saved
		appMu.Unlock()
	})

	if _, err := BuildHandler(&config.CoreConfig{}, validConfig(t), DBDeps{}, testLogger()); err == nil {
		t.Fatal("expected error before Startup")
	}
}
