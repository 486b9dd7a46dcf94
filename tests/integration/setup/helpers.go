package setup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// TruncateAllTables truncates all tables in correct order (children first, then parents)
func TruncateAllTables(t *testing.T, db *pgxpool.Pool, ctx context.Context) {
	t.Log("Truncating all database tables...")

	tables := []string{
		"activities",
		"invites",
		"profiles",
		"users",
	}

	for _, table := range tables {
		_, err := db.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		require.NoError(t, err, "failed to truncate table %s", table)
	}

	t.Log("All database tables truncated successfully")
}

// CreateAdminUser inserts an administrator account directly, bypassing the
// API, and returns its id. Sign-in is admin-only so nearly every test
// starts here.
func CreateAdminUser(t *testing.T, db *pgxpool.Pool, ctx context.Context, username, password string) uuid.UUID {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err, "failed to hash admin password")

	adminId := uuid.New()
	now := time.Now().UTC()
	_, err = db.Exec(ctx,
		"INSERT INTO users (id, username, email, password, jellyfin_user_id, disabled, is_admin, create_datetime, update_datetime) VALUES ($1,$2,NULL,$3,'',false,true,$4,$4)",
		adminId, username, string(hashedPassword), now)
	require.NoError(t, err, "failed to insert admin user")

	t.Logf("Created admin user %s (%s)", username, adminId)
	return adminId
}

// LoginAsAdmin signs in through the API and returns a bearer token.
func LoginAsAdmin(t *testing.T, app *fiber.App, username, password string) string {
	reqBody := []byte(fmt.Sprintf(`{"username":"%s","password":"%s"}`, username, password))
	req := CreateJSONRequest(http.MethodPost, "/api/auth/login", reqBody)

	resp, err := app.Test(req, -1)
	require.NoError(t, err, "login request should succeed")
	require.Equal(t, 200, resp.StatusCode, "login should return 200")

	result := ParseJSONResponse(t, resp)
	accessToken, ok := result["accessToken"].(string)
	require.True(t, ok, "login response should carry accessToken")
	require.NotEmpty(t, accessToken, "accessToken should not be empty")

	return accessToken
}

// CreateTestWebPImage creates a minimal valid WebP image for testing
// This is a 1x1 pixel WebP image in VP8L format
func CreateTestWebPImage(t *testing.T) []byte {
	webpData := []byte{
		// "RIFF"
		0x52, 0x49, 0x46, 0x46,
		// File size (little endian)
		0x1A, 0x00, 0x00, 0x00,
		// "WEBP"
		0x57, 0x45, 0x42, 0x50,
		// "VP8L"
		0x56, 0x50, 0x38, 0x4C,
		// Chunk size (little endian)
		0x18, 0x00, 0x00, 0x00,
		// VP8L data: 1x1 image, no alpha, version 1
		0x2F, 0x07, 0x10, 0x58,
		// Rest of VP8L data (green pixel)
		0x58, 0x10, 0x00, 0x00,
	}

	return webpData
}

// CreateMultipartFormData creates multipart form data for file upload
// requests. The file part carries a real content type derived from the file
// extension, the way browsers send uploads.
func CreateMultipartFormData(t *testing.T, fieldName, fileName string, fileData []byte, fields map[string]string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fieldName, fileName))
	contentType := mime.TypeByExtension(filepath.Ext(fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	partHeader.Set("Content-Type", contentType)

	part, err := writer.CreatePart(partHeader)
	require.NoError(t, err, "failed to create form file field")

	_, err = part.Write(fileData)
	require.NoError(t, err, "failed to write file data")

	for key, value := range fields {
		err = writer.WriteField(key, value)
		require.NoError(t, err, "failed to write form field %s", key)
	}

	err = writer.Close()
	require.NoError(t, err, "failed to close multipart writer")

	contentType = writer.FormDataContentType()
	return body, contentType
}

// CreateJSONRequest creates a test request with JSON body
func CreateJSONRequest(method, url string, jsonBody []byte) *http.Request {
	req := httptest.NewRequest(method, url, bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// CreateAuthRequest creates a test request with JSON body and Authorization header
func CreateAuthRequest(method, url string, jsonBody []byte, token string) *http.Request {
	req := CreateJSONRequest(method, url, jsonBody)
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	return req
}

// CreateAuthMultipartRequest creates a test request with multipart body and Authorization header
func CreateAuthMultipartRequest(method, url string, body *bytes.Buffer, contentType string, token string) *http.Request {
	req := httptest.NewRequest(method, url, body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	return req
}

// ParseJSONResponse helper to parse JSON response body into a map
func ParseJSONResponse(t *testing.T, resp *http.Response) map[string]interface{} {
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	require.NotEmpty(t, body, "response body should not be empty")

	var result map[string]interface{}
	err = json.Unmarshal(body, &result)
	require.NoError(t, err, "failed to parse JSON response")

	return result
}

// ParseJSONArrayResponse parses a response whose top level is a JSON array
// (the list endpoints return the slice directly)
func ParseJSONArrayResponse(t *testing.T, resp *http.Response) []interface{} {
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	require.NotEmpty(t, body, "response body should not be empty")

	var result []interface{}
	err = json.Unmarshal(body, &result)
	require.NoError(t, err, "failed to parse JSON array response")

	return result
}

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// ParseErrorResponse parses the error envelope into an ErrorResponse struct
func ParseErrorResponse(t *testing.T, result map[string]interface{}) ErrorResponse {
	require.Contains(t, result, "error", "response should contain error field")

	errObj, ok := result["error"].(map[string]interface{})
	require.True(t, ok, "error field should be an object")

	errResp := ErrorResponse{}

	if code, ok := errObj["code"].(string); ok {
		errResp.Code = code
	}
	if message, ok := errObj["message"].(string); ok {
		errResp.Message = message
	}
	if param, ok := errObj["param"].(string); ok {
		errResp.Param = param
	}

	return errResp
}

// ParseErrorDetail extracts complete error details (code, message, param)
func ParseErrorDetail(t *testing.T, result map[string]interface{}) (code, message, param string) {
	errResp := ParseErrorResponse(t, result)
	return errResp.Code, errResp.Message, errResp.Param
}

// GenerateRandomString generates a random string of specified length
// Uses lowercase letters and numbers for test data generation
func GenerateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)
	for i := range b {
		// #nosec G404 -- Weak randomness is acceptable for non-security test data
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
