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

// TestInviteValidationErrors checks the error envelope for bad input on
// invite creation and redemption: stable code, human message, and the
// offending parameter.
func TestInviteValidationErrors(t *testing.T) {
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

	t.Log("=== Invalid invite creation payloads ===")
	createCases := []struct {
		name  string
		body  string
		param string
	}{
		{"zero max uses", `{"maxUses":0}`, "maxUses"},
		{"zero expiry minutes", `{"expiresInMinutes":0}`, "expiresInMinutes"},
		{"negative user expiry days", `{"userExpiryDays":-1}`, "userExpiryDays"},
		{"malformed send-to address", `{"sendTo":"not-an-email"}`, "sendTo"},
	}

	for _, tc := range createCases {
		t.Logf("checking: %s", tc.name)
		req := setup.CreateAuthRequest(http.MethodPost, "/api/invites/", []byte(tc.body), token)

		resp, err := ta.App.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, 400, resp.StatusCode, tc.name)

		code, message, param := setup.ParseErrorDetail(t, setup.ParseJSONResponse(t, resp))
		require.Equal(t, "VALIDATION_ERROR", code, tc.name)
		require.NotEmpty(t, message, tc.name)
		require.Equal(t, tc.param, param, tc.name)
	}

	t.Log("=== Valid invite for redemption checks ===")
	req := setup.CreateAuthRequest(http.MethodPost, "/api/invites/", []byte(`{"maxUses":5}`), token)

	resp, err := ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	inviteCode := setup.ParseJSONResponse(t, resp)["code"].(string)

	t.Log("=== Invalid redemption payloads ===")
	redeemCases := []struct {
		name  string
		body  string
		param string
	}{
		{"username too short", `{"username":"ab","password":"long-enough-pw"}`, "username"},
		{"username with illegal characters", `{"username":"bad user!","password":"long-enough-pw"}`, "username"},
		{"password too short", `{"username":"valid_name","password":"short"}`, "password"},
		{"malformed email", `{"username":"valid_name","password":"long-enough-pw","email":"nope"}`, "email"},
	}

	for _, tc := range redeemCases {
		t.Logf("checking: %s", tc.name)
		req := setup.CreateJSONRequest(http.MethodPost, fmt.Sprintf("/api/invites/%s/redeem", inviteCode), []byte(tc.body))

		resp, err := ta.App.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, 400, resp.StatusCode, tc.name)

		code, _, param := setup.ParseErrorDetail(t, setup.ParseJSONResponse(t, resp))
		require.Equal(t, "VALIDATION_ERROR", code, tc.name)
		require.Equal(t, tc.param, param, tc.name)
	}

	t.Log("=== Duplicate username ===")
	req = setup.CreateJSONRequest(http.MethodPost, fmt.Sprintf("/api/invites/%s/redeem", inviteCode), []byte(`{"username":"taken_name","password":"long-enough-pw"}`))

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	req = setup.CreateJSONRequest(http.MethodPost, fmt.Sprintf("/api/invites/%s/redeem", inviteCode), []byte(`{"username":"TAKEN_NAME","password":"long-enough-pw"}`))

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 400, resp.StatusCode, "usernames are case-insensitive for uniqueness")

	code, _, param := setup.ParseErrorDetail(t, setup.ParseJSONResponse(t, resp))
	require.Equal(t, "VALIDATION_ERROR", code)
	require.Equal(t, "username", param)
}

// TestInviteNotFoundAndExpired covers dead links: unknown codes are 404,
// codes past their expiry are 410 with the expiry reason.
func TestInviteNotFoundAndExpired(t *testing.T) {
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

	t.Log("=== Unknown code ===")
	req := setup.CreateJSONRequest(http.MethodGet, "/api/invites/NOSUCHCD", nil)

	resp, err := ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 404, resp.StatusCode)

	errCode, _, _ := setup.ParseErrorDetail(t, setup.ParseJSONResponse(t, resp))
	require.Equal(t, "INVITE_NOT_FOUND", errCode)

	t.Log("=== Expired code ===")
	req = setup.CreateAuthRequest(http.MethodPost, "/api/invites/", []byte(`{"expiresInMinutes":60}`), token)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	inviteCode := setup.ParseJSONResponse(t, resp)["code"].(string)

	// Push the expiry into the past behind the API's back
	past := time.Now().UTC().Add(-time.Hour)
	_, err = ta.DB.Exec(ctx, "UPDATE invites SET expires_datetime=$1 WHERE code=$2", past, inviteCode)
	require.NoError(t, err)

	// The public view reports the invite as dead but still shows it
	req = setup.CreateJSONRequest(http.MethodGet, "/api/invites/"+inviteCode, nil)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	info := setup.ParseJSONResponse(t, resp)
	require.Equal(t, false, info["usable"])
	require.Equal(t, "INVITE_EXPIRED", info["reason"])

	// Redemption of an expired invite is gone for good
	req = setup.CreateJSONRequest(http.MethodPost, fmt.Sprintf("/api/invites/%s/redeem", inviteCode), []byte(`{"username":"too_late","password":"long-enough-pw"}`))

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 410, resp.StatusCode)

	errCode, _, _ = setup.ParseErrorDetail(t, setup.ParseJSONResponse(t, resp))
	require.Equal(t, "INVITE_EXPIRED", errCode)

	require.Equal(t, 0, mockJellyfin.UserCount())
}
