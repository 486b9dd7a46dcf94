package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/mkonradi/jellywarden/tests/integration/setup"
	"github.com/stretchr/testify/require"
)

// TestHealthCheck tests the health check endpoint
func TestHealthCheck(t *testing.T) {
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

	req := setup.CreateJSONRequest(http.MethodGet, "/api/health", nil)

	resp, err := ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
}

// TestInviteLifecycle walks the whole happy path: an admin creates a
// two-use invite with an account expiry, two guests redeem it, and the
// third attempt finds the invite exhausted.
func TestInviteLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	t.Log("=== Starting Test Infrastructure ===")
	infra, err := setup.StartInfra(ctx, t)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = infra.Terminate(ctx, t)
	})

	t.Log("=== Running Database Migrations ===")
	err = setup.RunMigration(infra.PgURL, t)
	require.NoError(t, err)

	mockJellyfin := setup.StartMockJellyfin(t)

	t.Log("=== Setting Up Test Application ===")
	ta := setup.SetupTestApp(t, infra.PgURL, infra.RedisURL, infra.MinioURL, infra.MailhogSMTP, mockJellyfin.URL())

	t.Cleanup(func() {
		setup.TruncateAllTables(t, ta.DB, ctx)
	})

	setup.CreateAdminUser(t, ta.DB, ctx, "admin", "admin-password")
	token := setup.LoginAsAdmin(t, ta.App, "admin", "admin-password")

	// Step 1: Create a two-use invite whose accounts expire after 30 days
	t.Log("=== Step 1: Create Invite ===")
	createBody := []byte(`{"label":"friends wave","maxUses":2,"expiresInMinutes":60,"userExpiryEnabled":true,"userExpiryDays":30}`)
	req := setup.CreateAuthRequest(http.MethodPost, "/api/invites/", createBody, token)

	resp, err := ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	created := setup.ParseJSONResponse(t, resp)
	code, ok := created["code"].(string)
	require.True(t, ok, "create response should carry the invite code")
	require.Len(t, code, 8)
	require.NotNil(t, created["expiresAt"], "a timed invite should report its expiry")

	// Step 2: Public lookup shows the invite as usable with both uses left
	t.Log("=== Step 2: Public Invite Info ===")
	req = setup.CreateJSONRequest(http.MethodGet, "/api/invites/"+code, nil)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	info := setup.ParseJSONResponse(t, resp)
	require.Equal(t, true, info["usable"])
	require.Equal(t, float64(2), info["usesRemaining"])
	require.Equal(t, "friends wave", info["label"])
	require.Equal(t, true, info["userExpiryEnabled"])

	// Step 3: First redemption creates a local account and a media-server
	// account, with the expiry stamped on
	t.Log("=== Step 3: First Redemption ===")
	redeemBody := []byte(`{"username":"guest_one","password":"first-secret"}`)
	req = setup.CreateJSONRequest(http.MethodPost, fmt.Sprintf("/api/invites/%s/redeem", code), redeemBody)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	redeemed := setup.ParseJSONResponse(t, resp)
	require.Equal(t, "guest_one", redeemed["username"])
	require.NotEmpty(t, redeemed["jellyfinUserId"])
	require.NotNil(t, redeemed["expiresAt"], "account expiry should come from the invite")

	require.NotNil(t, mockJellyfin.UserByName("guest_one"), "account should exist on the media server")

	// Step 4: One use left now
	t.Log("=== Step 4: Invite Info After First Redemption ===")
	req = setup.CreateJSONRequest(http.MethodGet, "/api/invites/"+code, nil)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	info = setup.ParseJSONResponse(t, resp)
	require.Equal(t, true, info["usable"])
	require.Equal(t, float64(1), info["usesRemaining"])

	// Step 5: Second redemption consumes the last use
	t.Log("=== Step 5: Second Redemption ===")
	redeemBody = []byte(`{"username":"guest_two","password":"second-secret","email":"two@example.com"}`)
	req = setup.CreateJSONRequest(http.MethodPost, fmt.Sprintf("/api/invites/%s/redeem", code), redeemBody)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	// Step 6: Third redemption is refused as exhausted
	t.Log("=== Step 6: Third Redemption Fails ===")
	redeemBody = []byte(`{"username":"guest_three","password":"third-secret"}`)
	req = setup.CreateJSONRequest(http.MethodPost, fmt.Sprintf("/api/invites/%s/redeem", code), redeemBody)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 410, resp.StatusCode)

	errCode, _, _ := setup.ParseErrorDetail(t, setup.ParseJSONResponse(t, resp))
	require.Equal(t, "INVITE_EXHAUSTED", errCode)

	require.Nil(t, mockJellyfin.UserByName("guest_three"), "refused redemption must not create a media-server account")

	// Step 7: Admin listing reports both uses and the dead state
	t.Log("=== Step 7: Admin Invite Listing ===")
	req = setup.CreateAuthRequest(http.MethodGet, "/api/invites/", nil, token)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	invites := setup.ParseJSONArrayResponse(t, resp)
	require.Len(t, invites, 1)

	item := invites[0].(map[string]interface{})
	require.Equal(t, code, item["code"])
	require.Equal(t, float64(2), item["usedCount"])
	require.Equal(t, float64(0), item["usesRemaining"])
	require.Equal(t, false, item["usable"])

	// Step 8: Both guests show up in the user listing, admin included
	t.Log("=== Step 8: User Listing ===")
	req = setup.CreateAuthRequest(http.MethodGet, "/api/users/", nil, token)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	users := setup.ParseJSONArrayResponse(t, resp)
	require.Len(t, users, 3)

	// Step 9: Deleting the invite removes it from lookup
	t.Log("=== Step 9: Delete Invite ===")
	req = setup.CreateAuthRequest(http.MethodDelete, "/api/invites/"+code, nil, token)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	req = setup.CreateJSONRequest(http.MethodGet, "/api/invites/"+code, nil)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 404, resp.StatusCode)
}

// TestInviteCreateSendsEmail checks the optional invite mail lands in the
// SMTP sink without affecting the invite itself.
func TestInviteCreateSendsEmail(t *testing.T) {
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

	createBody := []byte(`{"label":"mailed invite","sendTo":"guest@example.com","expiresInMinutes":120}`)
	req := setup.CreateAuthRequest(http.MethodPost, "/api/invites/", createBody, token)

	resp, err := ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	created := setup.ParseJSONResponse(t, resp)
	code := created["code"].(string)

	// The invite is live regardless of mail delivery
	req = setup.CreateJSONRequest(http.MethodGet, "/api/invites/"+code, nil)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	info := setup.ParseJSONResponse(t, resp)
	require.Equal(t, true, info["usable"])
}
