package session

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultRealm is used when a credential is built without a realm.
const DefaultRealm = "pam"

// ErrInvalidCredentials is returned when a credential is missing a required field.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials is a sealed union: exactly one of [PasswordCredential] or
// [TokenCredential]. Values are immutable once built.
type Credentials interface {
	// Principal returns user@realm.
	Principal() string
	// Expiring reports whether the session derived from this credential can be
	// invalidated server-side (tickets) or not (API tokens).
	Expiring() bool

	sealed()
}

// PasswordCredential authenticates by exchanging a password for a ticket.
type PasswordCredential struct {
	username string
	realm    string
	password string
}

// NewPasswordCredential validates and builds a password credential.
func NewPasswordCredential(username, realm, password string) (PasswordCredential, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return PasswordCredential{}, fmt.Errorf("%w: username is required", ErrInvalidCredentials)
	}
	if password == "" {
		return PasswordCredential{}, fmt.Errorf("%w: password is required", ErrInvalidCredentials)
	}
	return PasswordCredential{
		username: username,
		realm:    realmOrDefault(realm),
		password: password,
	}, nil
}

func (c PasswordCredential) Username() string  { return c.username }
func (c PasswordCredential) Realm() string     { return c.realm }
func (c PasswordCredential) Principal() string { return c.username + "@" + c.realm }
func (c PasswordCredential) Expiring() bool    { return true }
func (PasswordCredential) sealed()             {}

// String never includes the password.
func (c PasswordCredential) String() string {
	return "password(" + c.Principal() + ")"
}

// TokenCredential authenticates every request with a static API token header.
type TokenCredential struct {
	username    string
	realm       string
	tokenID     string
	tokenSecret string
}

// NewTokenCredential validates and builds an API token credential.
func NewTokenCredential(username, realm, tokenID, tokenSecret string) (TokenCredential, error) {
	username = strings.TrimSpace(username)
	tokenID = strings.TrimSpace(tokenID)
	switch {
	case username == "":
		return TokenCredential{}, fmt.Errorf("%w: username is required", ErrInvalidCredentials)
	case tokenID == "":
		return TokenCredential{}, fmt.Errorf("%w: token id is required", ErrInvalidCredentials)
	case tokenSecret == "":
		return TokenCredential{}, fmt.Errorf("%w: token secret is required", ErrInvalidCredentials)
	}
	return TokenCredential{
		username:    username,
		realm:       realmOrDefault(realm),
		tokenID:     tokenID,
		tokenSecret: tokenSecret,
	}, nil
}

func (c TokenCredential) Username() string  { return c.username }
func (c TokenCredential) Realm() string     { return c.realm }
func (c TokenCredential) TokenID() string   { return c.tokenID }
func (c TokenCredential) Principal() string { return c.username + "@" + c.realm }
func (c TokenCredential) Expiring() bool    { return false }
func (TokenCredential) sealed()             {}

// String never includes the token secret.
func (c TokenCredential) String() string {
	return "token(" + c.Principal() + "!" + c.tokenID + ")"
}

// AuthorizationHeader renders PVEAPIToken=<user>@<realm>!<tokenId>=<tokenSecret>.
func (c TokenCredential) AuthorizationHeader() string {
	return "PVEAPIToken=" + c.Principal() + "!" + c.tokenID + "=" + c.tokenSecret
}

func realmOrDefault(realm string) string {
	realm = strings.TrimSpace(realm)
	if realm == "" {
		return DefaultRealm
	}
	return realm
}
