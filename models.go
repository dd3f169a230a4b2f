package access

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// Profile extends an identity with display and business-linkage data. Keyed
// 1:1 by the identity id; created by a backend trigger on sign up, or by the
// one-shot healing path when the trigger has not run.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	DisplayName   string     `bun:"display_name" json:"display_name,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	AvatarURL     string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	BusinessID    *uuid.UUID `bun:"business_id,nullzero" json:"business_id,omitempty"`
	Favorites     []string   `bun:"favorites,nullzero" json:"favorites,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasBusinessLink reports whether a business id is set. The linkage still
// needs re-verification against the business record's owner.
func (p *Profile) HasBusinessLink() bool {
	return p != nil && p.BusinessID != nil && *p.BusinessID != uuid.Nil
}

// IsFavorite reports whether the given business id is in the favorites set.
func (p *Profile) IsFavorite(businessID uuid.UUID) bool {
	if p == nil {
		return false
	}
	for _, id := range p.Favorites {
		if id == businessID.String() {
			return true
		}
	}
	return false
}

// ProfileSeed carries the fields used to create a default profile.
type ProfileSeed struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone_number"`
	AvatarURL   string `json:"avatar_url"`
}

// Validate checks the seed fields before insertion.
func (s ProfileSeed) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Email, validation.Required, is.Email),
		validation.Field(&s.DisplayName, validation.Length(0, 120)),
		validation.Field(&s.AvatarURL, is.URL),
		validation.Field(&s.Phone, validation.By(validPhone)),
	)
}

func validPhone(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	num, err := phonenumbers.Parse(raw, "US")
	if err != nil {
		return err
	}
	if !phonenumbers.IsValidNumber(num) {
		return errors.New("must be a valid phone number")
	}
	return nil
}

// AdminMember is a row in the independently managed back-office membership
// table. A locked member confers no admin role and the lock is never
// explained to the session that hit it.
type AdminMember struct {
	bun.BaseModel `bun:"table:admin_users,alias:adm"`
	ID            uuid.UUID       `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Email         string          `bun:"email,notnull,unique" json:"email,omitempty"`
	Locked        bool            `bun:"is_locked" json:"is_locked,omitempty"`
	Permissions   map[string]bool `bun:"permissions" json:"permissions,omitempty"`
	CreatedAt     *time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Active reports whether the membership currently confers admin role.
func (m *AdminMember) Active() bool {
	return m != nil && !m.Locked
}

// Can checks a capability flag on the membership.
func (m *AdminMember) Can(flag string) bool {
	if m == nil || m.Permissions == nil {
		return false
	}
	return m.Permissions[flag]
}

// Business is the directory record a profile may link to. Ownership is only
// confirmed when owner_id matches the identity, the profile foreign key
// alone is never trusted.
type Business struct {
	bun.BaseModel `bun:"table:businesses,alias:biz"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	OwnerID       uuid.UUID  `bun:"owner_id,notnull,type:uuid" json:"owner_id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Slug          string     `bun:"slug,unique" json:"slug,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}
