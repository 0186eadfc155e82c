package intrasdk

import (
	"encoding/json"
	"time"
)

// Credentials identify this application to the intranet. They are loaded
// once at startup.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// TokenPair is the access/refresh token pair issued by the token endpoint.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IsZero reports whether the pair holds no tokens at all.
func (p TokenPair) IsZero() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Identity is the minimal account data returned by /v2/me right after login.
type Identity struct {
	UserID    int    `json:"user_id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Profile is a detailed user record. Level and Skills come from the user's
// main cursus (see MainCursusID).
type Profile struct {
	ID        int       `json:"id"`
	Login     string    `json:"login"`
	Email     string    `json:"email"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Location  *string   `json:"location,omitempty"`
	Wallet    int       `json:"wallet"`
	Level     *float64  `json:"level,omitempty"`
	Projects  []Project `json:"projects"`
	Skills    []Skill   `json:"skills"`
}

// Identity returns the account data of p in the shape /v2/me yields at
// login.
func (p Profile) Identity() Identity {
	id := Identity{UserID: p.ID, Login: p.Login}
	if p.AvatarURL != nil {
		id.AvatarURL = *p.AvatarURL
	}
	return id
}

// Skill is a named skill level within the main cursus.
type Skill struct {
	ID    int     `json:"id,omitempty"`
	Name  string  `json:"name"`
	Level float64 `json:"level"`
}

// Project is one of a user's project attempts.
type Project struct {
	ID        int         `json:"id"`
	FinalMark *int        `json:"final_mark,omitempty"`
	Status    string      `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
	Info      ProjectInfo `json:"project"`
}

// ProjectInfo names the project a Project attempt belongs to.
type ProjectInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ===========================
// Wire Types
// ===========================

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	CreatedAt    int64  `json:"created_at"`
}

type imageResponse struct {
	Link string `json:"link"`
}

type userResponse struct {
	ID            int                  `json:"id"`
	Login         string               `json:"login"`
	Email         string               `json:"email"`
	FirstName     *string              `json:"first_name"`
	LastName      *string              `json:"last_name"`
	Image         *imageResponse       `json:"image"`
	Location      *string              `json:"location"`
	Wallet        int                  `json:"wallet"`
	CursusUsers   []cursusUserResponse `json:"cursus_users"`
	ProjectsUsers []projectResponse    `json:"projects_users"`
}

type cursusUserResponse struct {
	Level  *float64        `json:"level"`
	Skills []skillResponse `json:"skills"`
	Cursus struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"cursus"`
}

type skillResponse struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Level float64 `json:"level"`
}

type projectResponse struct {
	ID        int       `json:"id"`
	FinalMark *int      `json:"final_mark"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Project   struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"project"`
}

func (u userResponse) avatar() *string {
	if u.Image == nil || u.Image.Link == "" {
		return nil
	}
	link := u.Image.Link
	return &link
}

func (u userResponse) identity() Identity {
	id := Identity{UserID: u.ID, Login: u.Login}
	if avatar := u.avatar(); avatar != nil {
		id.AvatarURL = *avatar
	}
	return id
}

func (u userResponse) profile() Profile {
	p := Profile{
		ID:        u.ID,
		Login:     u.Login,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		AvatarURL: u.avatar(),
		Location:  u.Location,
		Wallet:    u.Wallet,
		Projects:  make([]Project, 0, len(u.ProjectsUsers)),
		Skills:    []Skill{},
	}

	for _, cu := range u.CursusUsers {
		if cu.Cursus.ID != MainCursusID {
			continue
		}
		p.Level = cu.Level
		for _, s := range cu.Skills {
			p.Skills = append(p.Skills, Skill(s))
		}
		break
	}

	for _, pr := range u.ProjectsUsers {
		p.Projects = append(p.Projects, pr.project())
	}
	return p
}

func (pr projectResponse) project() Project {
	return Project{
		ID:        pr.ID,
		FinalMark: pr.FinalMark,
		Status:    pr.Status,
		UpdatedAt: pr.UpdatedAt,
		Info:      ProjectInfo{ID: pr.Project.ID, Name: pr.Project.Name},
	}
}

// DecodeProfile decodes a user document as served by /v2/me or
// /v2/users/{id}. Level and Skills are taken from the cursus with id
// MainCursusID; they stay empty when the user is not enrolled in it.
func DecodeProfile(data []byte) (Profile, error) {
	var u userResponse
	if err := json.Unmarshal(data, &u); err != nil {
		return Profile{}, newError(KindMalformedResponse, 0, "malformed user document", err)
	}
	if u.ID == 0 || u.Login == "" {
		return Profile{}, newError(KindMalformedResponse, 0, "user document is missing id or login", nil)
	}
	return u.profile(), nil
}
