package intrasdk

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/intra/pkg/intrasdk/intratest"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

var (
	jdoe = intratest.User{
		ID:        42,
		Login:     "jdoe",
		Email:     "jdoe@student.42.fr",
		FirstName: "John",
		LastName:  "Doe",
		ImageURL:  "https://cdn.intra.42.fr/users/jdoe.jpg",
		Location:  "e1r2p3",
		Wallet:    120,
		Cursus: []intratest.CursusUser{
			{CursusID: 9, Level: 9.5},
			{CursusID: MainCursusID, Level: 4.2, Skills: []intratest.Skill{{ID: 1, Name: "C", Level: 3.1}}},
		},
		Projects: []intratest.Project{
			{ID: 1001, FinalMark: intPtr(125), Status: "finished", UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), ProjectID: 1, Name: "libft"},
			{ID: 1002, Status: "in_progress", UpdatedAt: time.Date(2024, 4, 2, 12, 30, 0, 0, time.UTC), ProjectID: 2, Name: "ft_printf"},
		},
	}

	jsmith = intratest.User{
		ID:    77,
		Login: "jsmith",
		Email: "jsmith@student.42.fr",
	}
)

func newTestClient(t *testing.T) (*intratest.Server, *Client, *SessionStore) {
	t.Helper()

	srv := intratest.NewServer(t)
	srv.AddUser(jdoe)
	srv.AddUser(jsmith)

	store := NewSessionStore(nil, slog.New(slog.DiscardHandler))
	client := NewClient(Config{
		Credentials: Credentials{
			ClientID:     intratest.ClientID,
			ClientSecret: intratest.ClientSecret,
			RedirectURI:  intratest.RedirectURI,
		},
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000,
		Burst:             1000,
		Logger:            slog.New(slog.DiscardHandler),
	}, store)

	return srv, client, store
}

// loginAs runs the code exchange for login and commits the pair.
func loginAs(t *testing.T, srv *intratest.Server, client *Client, login string) TokenPair {
	t.Helper()

	srv.IssueCode("code-"+login, login)
	pair, err := client.ExchangeCodeForTokens(context.Background(), "code-"+login)
	require.NoError(t, err)
	require.NoError(t, client.Store().CommitTokens(client.Store().BeginFlow(), pair))
	return pair
}
