package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/mkonradi/jellywarden/tests/integration/setup"
	"github.com/stretchr/testify/require"
)

// TestProfileApplication creates a profile, attaches it to an invite and
// checks the redeemed account receives the profile's policy document.
func TestProfileApplication(t *testing.T) {
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

	t.Log("=== Create Profile ===")
	profileBody := []byte(`{"name":"kids","policy":{"IsAdministrator":false,"EnableAllFolders":false,"MaxParentalRating":7}}`)
	req := setup.CreateAuthRequest(http.MethodPost, "/api/profiles/", profileBody, token)

	resp, err := ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	profile := setup.ParseJSONResponse(t, resp)
	profileId := profile["id"].(string)
	require.Equal(t, "kids", profile["name"])
	require.Equal(t, false, profile["hasAvatar"])

	// Duplicate names are refused
	req = setup.CreateAuthRequest(http.MethodPost, "/api/profiles/", profileBody, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 400, resp.StatusCode)

	t.Log("=== Invite Carrying The Profile ===")
	createBody := []byte(fmt.Sprintf(`{"maxUses":1,"profileId":"%s"}`, profileId))
	req = setup.CreateAuthRequest(http.MethodPost, "/api/invites/", createBody, token)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	code := setup.ParseJSONResponse(t, resp)["code"].(string)

	req = setup.CreateJSONRequest(http.MethodPost, fmt.Sprintf("/api/invites/%s/redeem", code), []byte(`{"username":"kid_account","password":"kid-password"}`))
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	jfUser := mockJellyfin.UserByName("kid_account")
	require.NotNil(t, jfUser)
	require.Equal(t, false, jfUser.Policy["EnableAllFolders"])
	require.Equal(t, float64(7), jfUser.Policy["MaxParentalRating"])

	t.Log("=== Capture A Profile From An Existing User ===")
	seededId := mockJellyfin.AddUser("template_user", map[string]any{
		"IsAdministrator":  false,
		"IsDisabled":       false,
		"EnableAllFolders": true,
		"RemoteClientBitrateLimit": float64(8000000),
	})

	captureBody := []byte(fmt.Sprintf(`{"name":"captured","jellyfinUserId":"%s"}`, seededId))
	req = setup.CreateAuthRequest(http.MethodPost, "/api/profiles/capture", captureBody, token)

	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	captured := setup.ParseJSONResponse(t, resp)
	require.Equal(t, "captured", captured["name"])

	policy, ok := captured["policy"].(map[string]interface{})
	require.True(t, ok, "captured profile should embed the policy document")
	require.Equal(t, float64(8000000), policy["RemoteClientBitrateLimit"])

	t.Log("=== Listing And Deletion ===")
	req = setup.CreateAuthRequest(http.MethodGet, "/api/profiles/", nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	profiles := setup.ParseJSONArrayResponse(t, resp)
	require.Len(t, profiles, 2)

	req = setup.CreateAuthRequest(http.MethodDelete, "/api/profiles/"+profileId, nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	req = setup.CreateAuthRequest(http.MethodGet, "/api/profiles/", nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	profiles = setup.ParseJSONArrayResponse(t, resp)
	require.Len(t, profiles, 1)
}

// TestProfileAvatarUpload uploads a webp avatar onto a profile and checks
// the stored flag flips.
func TestProfileAvatarUpload(t *testing.T) {
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

	req := setup.CreateAuthRequest(http.MethodPost, "/api/profiles/", []byte(`{"name":"with-avatar","policy":{"IsAdministrator":false}}`), token)
	resp, err := ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	profileId := setup.ParseJSONResponse(t, resp)["id"].(string)

	imageData := setup.CreateTestWebPImage(t)
	body, contentType := setup.CreateMultipartFormData(t, "avatar", "avatar.webp", imageData, nil)

	req = setup.CreateAuthMultipartRequest(http.MethodPut, fmt.Sprintf("/api/profiles/%s/avatar", profileId), body, contentType, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	req = setup.CreateAuthRequest(http.MethodGet, "/api/profiles/", nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	profiles := setup.ParseJSONArrayResponse(t, resp)
	require.Len(t, profiles, 1)
	require.Equal(t, true, profiles[0].(map[string]interface{})["hasAvatar"])
}

// TestActivityFeedPagination checks the audit feed lists newest first and
// pages with an opaque cursor.
func TestActivityFeedPagination(t *testing.T) {
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

	// Five invites produce five invite_created entries
	codes := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		label := fmt.Sprintf(`{"label":"wave %d"}`, i)
		req := setup.CreateAuthRequest(http.MethodPost, "/api/invites/", []byte(label), token)

		resp, err := ta.App.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)

		codes = append(codes, setup.ParseJSONResponse(t, resp)["code"].(string))
	}

	t.Log("=== First Page ===")
	req := setup.CreateAuthRequest(http.MethodGet, "/api/activities/?limit=3", nil, token)
	resp, err := ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	page := setup.ParseJSONResponse(t, resp)
	data, ok := page["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 3)

	first := data[0].(map[string]interface{})
	require.Equal(t, "invite_created", first["kind"])
	require.Equal(t, codes[4], first["subject"], "newest entry comes first")

	pageInfo, ok := page["page"].(map[string]interface{})
	require.True(t, ok)
	cursor, ok := pageInfo["nextCursor"].(string)
	require.True(t, ok)
	require.NotEmpty(t, cursor)

	t.Log("=== Second Page ===")
	req = setup.CreateAuthRequest(http.MethodGet, "/api/activities/?limit=3&cursor="+cursor, nil, token)
	resp, err = ta.App.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	page = setup.ParseJSONResponse(t, resp)
	data, ok = page["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 2)

	last := data[len(data)-1].(map[string]interface{})
	require.Equal(t, codes[0], last["subject"], "oldest entry comes last")

	pageInfo, _ = page["page"].(map[string]interface{})
	if pageInfo != nil {
		nextCursor, _ := pageInfo["nextCursor"].(string)
		require.Empty(t, nextCursor, "the final page carries no cursor")
	}
}
