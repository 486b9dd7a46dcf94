package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/mkonradi/jellywarden/tests/integration/setup"
	"github.com/stretchr/testify/require"
)

// TestLoginIsAdminOnly checks the manager refuses regular accounts even
// with the correct password, and refuses protected routes without a token.
func TestLoginIsAdminOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	infra, err := setup.StartInfra(ctx, t)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = infra.Terminate(ctx, t)
	})

	err = setup.RunMigration(infra.PgURL, t)
	require.NoError(t, err)

	mockJellyfin := setup.StartMockJellyfin(t)
	ta := setup.SetupTestApp(t, infra.PgURL, infra.RedisURL, infra.MinioURL, infra.MailhogSMTP, mockJellyfin.URL())

	t.Cleanup(func() {
		setup.TruncateAllTables(t, ta.DB, ctx)
	})

	setup.CreateAdminUser(t, ta.DB, ctx, "admin", "admin-password")
	token := setup.LoginAsAdmin(t, ta.App, "admin", "admin-password")

	// A guest account created through an invite is not allowed in
	req := setup.CreateAuthRequest(http.MethodPost, "/api/invites/", []byte(`{"maxUses":1}`), token)
	resp, err := ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	code := setup.ParseJSONResponse(t, resp)["code"].(string)

	req = setup.CreateJSONRequest(http.MethodPost, fmt.Sprintf("/api/invites/%s/redeem", code), []byte(`{"username":"plainguest","password":"guest-password"}`))
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	req = setup.CreateJSONRequest(http.MethodPost, "/api/auth/login", []byte(`{"username":"plainguest","password":"guest-password"}`))
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 400, resp.StatusCode)

	errCode, _, _ := setup.ParseErrorDetail(t, setup.ParseJSONResponse(t, resp))
	require.Equal(t, "UNAUTHORIZED_ERROR", errCode)

	// Wrong password for the admin
	req = setup.CreateJSONRequest(http.MethodPost, "/api/auth/login", []byte(`{"username":"admin","password":"wrong-password"}`))
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 400, resp.StatusCode)

	// No token on a protected route
	req = setup.CreateJSONRequest(http.MethodGet, "/api/users/", nil)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 401, resp.StatusCode)

	// Garbage token
	req = setup.CreateAuthRequest(http.MethodGet, "/api/users/", nil, "not-a-jwt")
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 401, resp.StatusCode)

	// Logout revokes the token immediately
	req = setup.CreateAuthRequest(http.MethodPost, "/api/auth/logout", nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	req = setup.CreateAuthRequest(http.MethodGet, "/api/users/", nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 401, resp.StatusCode)
}

// TestTokenRefresh exchanges a refresh token for a new pair and checks the
// old access token is revoked by the rotation.
func TestTokenRefresh(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	infra, err := setup.StartInfra(ctx, t)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = infra.Terminate(ctx, t)
	})

	err = setup.RunMigration(infra.PgURL, t)
	require.NoError(t, err)

	mockJellyfin := setup.StartMockJellyfin(t)
	ta := setup.SetupTestApp(t, infra.PgURL, infra.RedisURL, infra.MinioURL, infra.MailhogSMTP, mockJellyfin.URL())

	t.Cleanup(func() {
		setup.TruncateAllTables(t, ta.DB, ctx)
	})

	setup.CreateAdminUser(t, ta.DB, ctx, "admin", "admin-password")

	req := setup.CreateJSONRequest(http.MethodPost, "/api/auth/login", []byte(`{"username":"admin","password":"admin-password"}`))
	resp, err := ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	loginBody := setup.ParseJSONResponse(t, resp)
	oldAccessToken := loginBody["accessToken"].(string)
	refreshToken := loginBody["refreshToken"].(string)
	require.NotEmpty(t, refreshToken)

	// A wrong refresh token is rejected
	req = setup.CreateAuthRequest(http.MethodPost, "/api/auth/refresh", []byte(`{"refreshToken":"not-the-token"}`), oldAccessToken)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 401, resp.StatusCode)

	// JWT claims carry second precision, so a pair issued within the same
	// second would be byte-identical to the previous one.
	time.Sleep(1100 * time.Millisecond)

	body := fmt.Sprintf(`{"refreshToken":%q}`, refreshToken)
	req = setup.CreateAuthRequest(http.MethodPost, "/api/auth/refresh", []byte(body), oldAccessToken)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	refreshBody := setup.ParseJSONResponse(t, resp)
	newAccessToken := refreshBody["accessToken"].(string)
	require.NotEmpty(t, newAccessToken)
	require.NotEqual(t, oldAccessToken, newAccessToken)

	req = setup.CreateAuthRequest(http.MethodGet, "/api/users/me", nil, newAccessToken)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	// The rotation revokes the previous access token
	req = setup.CreateAuthRequest(http.MethodGet, "/api/users/me", nil, oldAccessToken)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 401, resp.StatusCode)
}

// TestUserAdministration drives disable, enable, expiry extension, watch
// stats and deletion of an invited account, checking the media server is
// kept in step.
func TestUserAdministration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	infra, err := setup.StartInfra(ctx, t)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = infra.Terminate(ctx, t)
	})

	err = setup.RunMigration(infra.PgURL, t)
	require.NoError(t, err)

	mockJellyfin := setup.StartMockJellyfin(t)
	ta := setup.SetupTestApp(t, infra.PgURL, infra.RedisURL, infra.MinioURL, infra.MailhogSMTP, mockJellyfin.URL())

	t.Cleanup(func() {
		setup.TruncateAllTables(t, ta.DB, ctx)
	})

	adminId := setup.CreateAdminUser(t, ta.DB, ctx, "admin", "admin-password")
	token := setup.LoginAsAdmin(t, ta.App, "admin", "admin-password")

	// /users/me reflects the signed-in admin
	req := setup.CreateAuthRequest(http.MethodGet, "/api/users/me", nil, token)
	resp, err := ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	me := setup.ParseJSONResponse(t, resp)
	require.Equal(t, adminId.String(), me["id"])
	require.Equal(t, "admin", me["username"])

	// Create a guest through an invite
	req = setup.CreateAuthRequest(http.MethodPost, "/api/invites/", []byte(`{"maxUses":1}`), token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	code := setup.ParseJSONResponse(t, resp)["code"].(string)

	req = setup.CreateJSONRequest(http.MethodPost, fmt.Sprintf("/api/invites/%s/redeem", code), []byte(`{"username":"managed_guest","password":"guest-password"}`))
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	redeemed := setup.ParseJSONResponse(t, resp)
	guestId := redeemed["id"].(string)

	// Disable: the media-server policy flips too
	t.Log("=== Disable ===")
	req = setup.CreateAuthRequest(http.MethodPost, fmt.Sprintf("/api/users/%s/disable", guestId), nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	jfUser := mockJellyfin.UserByName("managed_guest")
	require.NotNil(t, jfUser)
	require.Equal(t, true, jfUser.Policy["IsDisabled"])

	var disabled bool
	err = ta.DB.QueryRow(ctx, "SELECT disabled FROM users WHERE id=$1", guestId).Scan(&disabled)
	require.NoError(t, err)
	require.True(t, disabled)

	// Enable flips it back
	t.Log("=== Enable ===")
	req = setup.CreateAuthRequest(http.MethodPost, fmt.Sprintf("/api/users/%s/enable", guestId), nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	jfUser = mockJellyfin.UserByName("managed_guest")
	require.Equal(t, false, jfUser.Policy["IsDisabled"])

	// The other untouched policy fields survive the round trip
	require.Equal(t, true, jfUser.Policy["EnableAllFolders"])

	// Extend expiry by 30 days from now (the account had none)
	t.Log("=== Extend Expiry ===")
	req = setup.CreateAuthRequest(http.MethodPut, fmt.Sprintf("/api/users/%s/expiry", guestId), []byte(`{"days":30}`), token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	updated := setup.ParseJSONResponse(t, resp)
	require.NotNil(t, updated["expiresAt"])

	expiresAt, err := time.Parse(time.RFC3339, updated["expiresAt"].(string))
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().UTC().Add(30*24*time.Hour), expiresAt, time.Minute)

	// Watch stats come from the media server and survive a second call
	// through the cache
	t.Log("=== Watch Stats ===")
	mockJellyfin.PlayItems = []setup.MockPlayItem{
		{PlayCount: 3, RunTimeTicks: 36_000_000_000},
		{PlayCount: 1, RunTimeTicks: 12_000_000_000},
	}

	req = setup.CreateAuthRequest(http.MethodGet, fmt.Sprintf("/api/users/%s/stats", guestId), nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	stats := setup.ParseJSONResponse(t, resp)
	require.Equal(t, float64(4), stats["playCount"])

	// Second read hits the cache and reports the same numbers
	req = setup.CreateAuthRequest(http.MethodGet, fmt.Sprintf("/api/users/%s/stats", guestId), nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	stats = setup.ParseJSONResponse(t, resp)
	require.Equal(t, float64(4), stats["playCount"])

	// Admin accounts cannot be deleted
	t.Log("=== Admin Delete Refused ===")
	req = setup.CreateAuthRequest(http.MethodDelete, "/api/users/"+adminId.String(), nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 400, resp.StatusCode)

	// Deleting the guest removes both accounts
	t.Log("=== Delete Guest ===")
	req = setup.CreateAuthRequest(http.MethodDelete, "/api/users/"+guestId, nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	require.Nil(t, mockJellyfin.UserByName("managed_guest"))

	var count int
	err = ta.DB.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE id=$1", guestId).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	// Unknown target id is a 404
	req = setup.CreateAuthRequest(http.MethodDelete, "/api/users/"+guestId, nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 404, resp.StatusCode)
}

// TestHousekeepingSweep seeds an expired invite and an expired account and
// runs one sweep pass: the invite disappears and the account is disabled
// locally and on the media server.
func TestHousekeepingSweep(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	infra, err := setup.StartInfra(ctx, t)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = infra.Terminate(ctx, t)
	})

	err = setup.RunMigration(infra.PgURL, t)
	require.NoError(t, err)

	mockJellyfin := setup.StartMockJellyfin(t)
	ta := setup.SetupTestApp(t, infra.PgURL, infra.RedisURL, infra.MinioURL, infra.MailhogSMTP, mockJellyfin.URL())

	t.Cleanup(func() {
		setup.TruncateAllTables(t, ta.DB, ctx)
	})

	setup.CreateAdminUser(t, ta.DB, ctx, "admin", "admin-password")
	token := setup.LoginAsAdmin(t, ta.App, "admin", "admin-password")

	// An invite that will be found expired
	req := setup.CreateAuthRequest(http.MethodPost, "/api/invites/", []byte(`{"expiresInMinutes":60}`), token)
	resp, err := ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	expiredCode := setup.ParseJSONResponse(t, resp)["code"].(string)

	// And one that stays alive
	req = setup.CreateAuthRequest(http.MethodPost, "/api/invites/", []byte(`{"expiresInMinutes":60}`), token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	liveCode := setup.ParseJSONResponse(t, resp)["code"].(string)

	// A guest whose account expiry will be found passed
	req = setup.CreateAuthRequest(http.MethodPost, "/api/invites/", []byte(`{"maxUses":1}`), token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	guestInvite := setup.ParseJSONResponse(t, resp)["code"].(string)

	req = setup.CreateJSONRequest(http.MethodPost, fmt.Sprintf("/api/invites/%s/redeem", guestInvite), []byte(`{"username":"lapsed_guest","password":"guest-password"}`))
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	guestId := setup.ParseJSONResponse(t, resp)["id"].(string)

	past := time.Now().UTC().Add(-time.Hour)
	_, err = ta.DB.Exec(ctx, "UPDATE invites SET expires_datetime=$1 WHERE code=$2", past, expiredCode)
	require.NoError(t, err)
	_, err = ta.DB.Exec(ctx, "UPDATE users SET expires_datetime=$1 WHERE id=$2", past, guestId)
	require.NoError(t, err)

	t.Log("=== Running One Sweep Pass ===")
	ta.Sweeper.Sweep(ctx)

	var count int
	err = ta.DB.QueryRow(ctx, "SELECT COUNT(*) FROM invites WHERE code=$1", expiredCode).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count, "expired invite should be removed")

	err = ta.DB.QueryRow(ctx, "SELECT COUNT(*) FROM invites WHERE code=$1", liveCode).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count, "live invite should survive the sweep")

	var disabled bool
	err = ta.DB.QueryRow(ctx, "SELECT disabled FROM users WHERE id=$1", guestId).Scan(&disabled)
	require.NoError(t, err)
	require.True(t, disabled, "expired account should be disabled")

	jfUser := mockJellyfin.UserByName("lapsed_guest")
	require.NotNil(t, jfUser)
	require.Equal(t, true, jfUser.Policy["IsDisabled"])
}
