package auth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Session is the authorization state for the running process.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// ExpiresWithin reports whether the access token expires less than d after now.
func (s Session) ExpiresWithin(d time.Duration, now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return true
	}
	return s.ExpiresAt.Sub(now) <= d
}

// HasScope reports whether scope was granted.
func (s Session) HasScope(scope string) bool {
	for _, sc := range s.Scopes {
		if sc == scope {
			return true
		}
	}
	return false
}

func (s Session) token() *oauth2.Token {
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    tokenType,
		Expiry:       s.ExpiresAt,
	}
}

func sessionFromToken(tok *oauth2.Token, requested []string) Session {
	s := Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
	if granted, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(granted) != "" {
		s.Scopes = strings.Fields(granted)
	} else {
		s.Scopes = append([]string(nil), requested...)
	}
	return s
}
