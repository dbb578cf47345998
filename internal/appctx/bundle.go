// Package appctx carries the application-wide sources that derivations are
// built from.
//
// The sources are passed explicitly: a Bundle is constructed once by the
// process (or a test) and handed to NewStores or registered with a Provider.
// Nothing is looked up from ambient state.
package appctx

import (
	"time"

	"github.com/roach88/derive/internal/observable"
	"github.com/roach88/derive/internal/settings"
)

// Source names, as exposed by Bundle.Source.
const (
	SourceSettings     = "settings"
	SourceUser         = "user"
	SourcePlatform     = "platformContext"
	SourceIsLightTheme = "isLightTheme"
)

// User is the signed-in user. A nil *User means nobody is signed in.
type User struct {
	ID          string `json:"id" yaml:"id"`
	Username    string `json:"username" yaml:"username"`
	DisplayName string `json:"displayName,omitempty" yaml:"display_name"`
	SiteAdmin   bool   `json:"siteAdmin" yaml:"site_admin"`
}

// Platform describes the client environment the sources run in.
type Platform struct {
	ClientApplication string `json:"clientApplication"`
	BaseURL           string `json:"baseURL"`
	Version           string `json:"version,omitempty"`
}

// Signature identifies who made a commit and when.
type Signature struct {
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
	Date  time.Time `json:"date"`
}

// Commit is the tip commit of a resolved repository.
type Commit struct {
	OID    string    `json:"oid"`
	Author Signature `json:"author"`
}

// Repository is a resolved repository and its current tip.
type Repository struct {
	Name   string `json:"name"`
	Commit Commit `json:"commit"`
}

// Bundle is the fixed set of sources supplied by the host application.
type Bundle struct {
	Settings     observable.Readable[settings.Settings]
	User         observable.Readable[*User]
	Platform     observable.Readable[*Platform]
	IsLightTheme observable.Readable[bool]
}

// Validate reports the first missing source.
func (b *Bundle) Validate() error {
	if b == nil {
		return observable.NewMissingSourceError("bundle", "no bundle provided")
	}
	switch {
	case b.Settings == nil:
		return observable.NewMissingSourceError(SourceSettings, "bundle has no settings source")
	case b.User == nil:
		return observable.NewMissingSourceError(SourceUser, "bundle has no user source")
	case b.Platform == nil:
		return observable.NewMissingSourceError(SourcePlatform, "bundle has no platform source")
	case b.IsLightTheme == nil:
		return observable.NewMissingSourceError(SourceIsLightTheme, "bundle has no theme source")
	}
	return nil
}

// Source returns the source registered under name. The result is one of the
// Bundle's Readable fields; callers type-assert to the concrete Readable.
func (b *Bundle) Source(name string) (any, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	switch name {
	case SourceSettings:
		return b.Settings, nil
	case SourceUser:
		return b.User, nil
	case SourcePlatform:
		return b.Platform, nil
	case SourceIsLightTheme:
		return b.IsLightTheme, nil
	default:
		return nil, observable.NewMissingSourceError(name, "unknown source")
	}
}

// SourceNames lists the names accepted by Source, in declaration order.
func SourceNames() []string {
	return []string{SourceSettings, SourceUser, SourcePlatform, SourceIsLightTheme}
}
