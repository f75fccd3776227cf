package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"dme-backend/internal/activities"
	sharedauth "dme-backend/internal/shared/auth"
	"dme-backend/internal/shared/server/respond"
	"dme-backend/internal/users"
)

const stateCookie = "oauth_state"

// GoogleService handles the Google OAuth login flow.
type GoogleService struct {
	oauthConfig *oauth2.Config
	uiRedirect  string
	stateTTL    time.Duration
	tokens      *sharedauth.Manager
	users       *users.Service
	activity    *activities.Service
}

// NewGoogleService builds a GoogleService.
func NewGoogleService(clientID, clientSecret, redirectURL, uiRedirect string, tokens *sharedauth.Manager, userSvc *users.Service, activity *activities.Service) *GoogleService {
	return &GoogleService{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		uiRedirect: uiRedirect,
		stateTTL:   5 * time.Minute,
		tokens:     tokens,
		users:      userSvc,
		activity:   activity,
	}
}

// RegisterRoutes attaches Google auth routes.
func (s *GoogleService) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/auth/google/start", s.start)
	rg.GET("/auth/google/callback", s.callback)
}

func (s *GoogleService) start(c *gin.Context) {
	if s.oauthConfig.ClientID == "" || s.oauthConfig.ClientSecret == "" || s.oauthConfig.RedirectURL == "" {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "Google auth not configured", nil)
		return
	}

	state := uuid.NewString()
	c.SetCookie(stateCookie, state, int(s.stateTTL.Seconds()), "/", "", s.secureCookies(), true)

	url := s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
	c.Redirect(http.StatusFound, url)
}

func (s *GoogleService) callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "missing state or code", nil)
		return
	}

	expected, err := c.Cookie(stateCookie)
	c.SetCookie(stateCookie, "", -1, "/", "", s.secureCookies(), true)
	if err != nil || expected == "" || expected != state {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid or expired state", nil)
		return
	}

	ctx := c.Request.Context()
	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "failed to exchange code", nil)
		return
	}

	userInfo, err := s.fetchUserInfo(ctx, token)
	if err != nil {
		respond.Error(c, http.StatusBadGateway, "internal_error", "failed to fetch user profile", nil)
		return
	}
	if userInfo.Sub == "" || userInfo.Email == "" {
		respond.Error(c, http.StatusBadGateway, "internal_error", "invalid user profile", nil)
		return
	}

	user, err := s.users.UpsertFromSSO(ctx, userInfo.Email)
	if err != nil {
		if errors.Is(err, users.ErrUserInactive) {
			respond.Error(c, http.StatusForbidden, "forbidden", "account is inactive", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to resolve account", nil)
		return
	}

	name := userInfo.Name
	if name == "" {
		name = user.Username
	}
	accessToken, err := s.tokens.Sign(user.ID, user.Email, name, user.Role)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to issue token", nil)
		return
	}

	s.activity.Log(ctx, activities.Activity{
		UserID:       user.ID,
		Action:       activities.ActionLogin,
		ResourceType: activities.ResourceUser,
		ResourceID:   user.ID,
		Details:      map[string]any{"method": "google"},
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})

	redirectURL, err := appendToken(s.uiRedirect, accessToken)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to redirect", nil)
		return
	}

	c.Redirect(http.StatusFound, redirectURL)
}

func (s *GoogleService) secureCookies() bool {
	return strings.HasPrefix(s.oauthConfig.RedirectURL, "https://")
}

type googleUserInfo struct {
	Sub     string `json:"sub"`
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (s *GoogleService) fetchUserInfo(ctx context.Context, token *oauth2.Token) (googleUserInfo, error) {
	client := s.oauthConfig.Client(ctx, token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return googleUserInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return googleUserInfo{}, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return googleUserInfo{}, err
	}

	// Some responses use "id" instead of "sub".
	if info.Sub == "" {
		info.Sub = info.ID
	}
	return info, nil
}

func appendToken(rawURL, token string) (string, error) {
	if rawURL == "" {
		return "", errors.New("redirect url required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
