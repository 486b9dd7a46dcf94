package setup

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// MockJellyfinUser is one account held by the fake media server.
type MockJellyfinUser struct {
	Id       string         `json:"Id"`
	Name     string         `json:"Name"`
	Password string         `json:"-"`
	Policy   map[string]any `json:"Policy"`
}

// MockPlayItem is one played library item reported by the /Items endpoint.
type MockPlayItem struct {
	PlayCount    int
	RunTimeTicks int64
}

// MockJellyfin is an in-memory stand-in for a Jellyfin server. Tests can
// flip the Fail* switches to simulate media-server outages and inspect
// which accounts were created or deleted.
type MockJellyfin struct {
	Server *httptest.Server

	mu    sync.Mutex
	users map[string]*MockJellyfinUser

	FailCreateUser bool
	FailSetPolicy  bool
	CreateCalls    int
	DeleteCalls    int
	PlayItems      []MockPlayItem
}

func StartMockJellyfin(t *testing.T) *MockJellyfin {
	t.Log("Starting mock Jellyfin server...")

	mock := &MockJellyfin{
		users: make(map[string]*MockJellyfinUser),
	}
	mock.Server = httptest.NewServer(http.HandlerFunc(mock.handle))

	t.Cleanup(func() {
		mock.Server.Close()
	})

	t.Logf("Mock Jellyfin started at: %s", mock.Server.URL)
	return mock
}

func (m *MockJellyfin) URL() string {
	return m.Server.URL
}

// UserCount returns how many accounts currently exist on the fake server.
func (m *MockJellyfin) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// UserByName returns a copy of the account with the given name, or nil.
func (m *MockJellyfin) UserByName(name string) *MockJellyfinUser {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.Name == name {
			copied := *user
			return &copied
		}
	}
	return nil
}

// AddUser seeds an account directly, for tests that need a pre-existing
// Jellyfin user (profile capture, disable, stats).
func (m *MockJellyfin) AddUser(name string, policy map[string]any) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if policy == nil {
		policy = map[string]any{
			"IsAdministrator":  false,
			"IsDisabled":       false,
			"EnableAllFolders": true,
		}
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	m.users[id] = &MockJellyfinUser{Id: id, Name: name, Policy: policy}
	return id
}

func (m *MockJellyfin) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/System/Info" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]any{
			"ServerName": "mock-jellyfin",
			"Version":    "10.9.0",
			"Id":         "mock-server-id",
		})
		return
	}

	if path == "/Users/New" && r.Method == http.MethodPost {
		m.handleCreateUser(w, r)
		return
	}

	if !strings.HasPrefix(path, "/Users/") {
		http.NotFound(w, r)
		return
	}

	parts := strings.Split(strings.TrimPrefix(path, "/Users/"), "/")
	id := parts[0]

	m.mu.Lock()
	user, exists := m.users[id]
	m.mu.Unlock()

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		if !exists {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeJSON(w, http.StatusOK, user)

	case len(parts) == 1 && r.Method == http.MethodDelete:
		m.mu.Lock()
		m.DeleteCalls++
		_, exists = m.users[id]
		delete(m.users, id)
		m.mu.Unlock()

		if !exists {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case len(parts) == 2 && parts[1] == "Policy" && r.Method == http.MethodPost:
		m.handleSetPolicy(w, r, id)

	case len(parts) == 2 && parts[1] == "Password" && r.Method == http.MethodPost:
		if !exists {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case len(parts) == 2 && parts[1] == "Items" && r.Method == http.MethodGet:
		m.handleItems(w, r, exists)

	case len(parts) == 3 && parts[1] == "Images" && r.Method == http.MethodPost:
		if !exists {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.NotFound(w, r)
	}
}

func (m *MockJellyfin) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"Name"`
		Password string `json:"Password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++

	if m.FailCreateUser {
		writeError(w, http.StatusInternalServerError, "Simulated media server outage")
		return
	}

	for _, user := range m.users {
		if user.Name == payload.Name {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("A user with the name %s already exists.", payload.Name))
			return
		}
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	user := &MockJellyfinUser{
		Id:       id,
		Name:     payload.Name,
		Password: payload.Password,
		Policy: map[string]any{
			"IsAdministrator":  false,
			"IsDisabled":       false,
			"EnableAllFolders": true,
		},
	}
	m.users[id] = user

	writeJSON(w, http.StatusOK, user)
}

func (m *MockJellyfin) handleSetPolicy(w http.ResponseWriter, r *http.Request, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSetPolicy {
		writeError(w, http.StatusInternalServerError, "Simulated media server outage")
		return
	}

	user, exists := m.users[id]
	if !exists {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	var policy map[string]any
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy document")
		return
	}

	user.Policy = policy
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockJellyfin) handleItems(w http.ResponseWriter, r *http.Request, exists bool) {
	if !exists {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	m.mu.Lock()
	items := make([]map[string]any, 0, len(m.PlayItems))
	for _, item := range m.PlayItems {
		items = append(items, map[string]any{
			"UserData":     map[string]any{"PlayCount": item.PlayCount},
			"RunTimeTicks": item.RunTimeTicks,
		})
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"Items":            items,
		"TotalRecordCount": len(items),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
