package directory

import (
	"context"
	"errors"

	"github.com/dmitrymomot/subsync/pkg/license"
)

var (
	ErrUserNotFound  = errors.New("directory user not found")
	ErrEmailTaken    = errors.New("directory email already registered")
	ErrUnauthorized  = errors.New("directory request unauthorized")
	ErrUpstream      = errors.New("directory upstream failure")
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrInvalidUserID = errors.New("invalid user id")
)

// User is a directory identity together with its app-metadata record.
type User struct {
	ID       string           `json:"user_id"`
	Email    string           `json:"email"`
	Metadata license.Metadata `json:"app_metadata"`
}

// Metadata document keys. The directory stores the record as an opaque
// key-value document, so partial updates address fields by key.
const (
	KeySubscriptionStatus   = "subscription_status"
	KeySubscriptionID       = "subscription_id"
	KeySubscriptionSKU      = "subscription_sku"
	KeySubscriptionExpiry   = "subscription_expiry"
	KeySubscriptionQuantity = "subscription_quantity"
	KeyPaymentProvider      = "payment_provider"
	KeyTeamMemberIDs        = "team_member_ids"
	KeyLockedLicenses       = "locked_licenses"
	KeyOwnerID              = "subscription_owner_id"
	KeyJoinedTeamAt         = "joined_team_at"
	KeyBanned               = "banned"
)

type deletedMarker struct{}

// MarshalJSON encodes the marker as null; the directory removes keys whose
// patched value is null.
func (deletedMarker) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Deleted is the patch value that removes a key from the stored record
// instead of leaving stale data behind.
var Deleted = deletedMarker{}

// Patch is a partial metadata update. Keys absent from the patch are left
// untouched; keys set to Deleted are removed from the record.
type Patch map[string]any

// Set assigns a value and returns the patch for chaining.
func (p Patch) Set(key string, value any) Patch {
	p[key] = value
	return p
}

// Delete marks a key for removal and returns the patch for chaining.
func (p Patch) Delete(key string) Patch {
	p[key] = Deleted
	return p
}

// Client is the adapter interface to the external user directory.
type Client interface {
	// GetUser fetches a user by directory id.
	// Returns ErrUserNotFound when no such user exists.
	GetUser(ctx context.Context, id string) (User, error)

	// GetUsersByEmail returns all users registered under email. The
	// directory permits duplicate registrations across identity providers,
	// so more than one result is possible.
	GetUsersByEmail(ctx context.Context, email string) ([]User, error)

	// CreateUser provisions a new identity with empty metadata.
	CreateUser(ctx context.Context, email string) (User, error)

	// UpdateMetadata applies a partial update to the user's metadata record.
	UpdateMetadata(ctx context.Context, id string, patch Patch) error

	// SearchMembersByOwner returns every user whose subscription_owner_id
	// equals ownerID.
	SearchMembersByOwner(ctx context.Context, ownerID string) ([]User, error)
}

// TokenResolver resolves a bearer access token issued by the directory to
// the directory user ID it belongs to. Returns ErrUnauthorized for missing,
// expired or forged tokens.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (string, error)
}
