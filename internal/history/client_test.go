package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/protocol"
)

func TestFetch(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("zoneId")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[
			{"id":1,"content":"hey","senderId":8,"createdAt":"2024-05-01T12:00:00Z","sender":{"id":8,"displayName":"Bo","username":"bo"}},
			{"id":"abc","content":"yo","senderId":"7","createdAt":"2024-05-01T12:01:00Z","sender":{"id":"7"}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/api/", Token: "tok", Timeout: time.Second}, nil, nil)
	msgs, err := c.Fetch(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, "/api/zone-messages", gotPath)
	assert.Equal(t, "42", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)

	require.Len(t, msgs, 2)
	assert.Equal(t, protocol.ID("1"), msgs[0].ID)
	assert.Equal(t, protocol.ID("8"), msgs[0].SenderID)
	assert.Equal(t, "Bo", msgs[0].Sender.DisplayName)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), msgs[0].CreatedAt.UTC())
	assert.Equal(t, protocol.ID("abc"), msgs[1].ID)
}

func TestFetch_NoTokenNoHeader(t *testing.T) {
	var hadAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	msgs, err := NewClient(Config{BaseURL: srv.URL}, nil, nil).Fetch(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.False(t, hadAuth)
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"messages":`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(Config{BaseURL: srv.URL}, nil, nil).Fetch(context.Background(), "42")
			assert.Error(t, err)
		})
	}
}

func TestFetch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(Config{BaseURL: srv.URL}, nil, nil).Fetch(ctx, "42")
	assert.ErrorIs(t, err, context.Canceled)
}
