package domain

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Category classifies a scheduled post.
type Category string

const (
	CategoryGeneral  Category = "general"
	CategoryBirthday Category = "birthday"
	CategoryEvent    Category = "event"
	CategoryHoliday  Category = "holiday"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryGeneral, CategoryBirthday, CategoryEvent, CategoryHoliday:
		return true
	}
	return false
}

const (
	// MaxBodyLength is the platform's limit on post text, in characters.
	MaxBodyLength = 63206
	// MaxMediaRefs caps the photos attached to one post.
	MaxMediaRefs = 10
)

// ScheduledPost is a post waiting to go live on the platform.
//
// ExternalRef is nil until the platform accepted the post, and is never
// changed once set. Posts without it are drafts and are never reconciled.
type ScheduledPost struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	Body        string    `json:"body"`
	PublishAt   time.Time `json:"publish_at"`
	MediaRefs   []string  `json:"media_refs"`
	ExternalRef *string   `json:"external_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsDraft reports whether the post has not been accepted by the platform yet.
func (p *ScheduledPost) IsDraft() bool {
	return p.ExternalRef == nil || *p.ExternalRef == ""
}

// NormalizeInstant truncates t to millisecond precision in UTC, the
// resolution publish times are stored and compared at.
func NormalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// CreatePostRequest is the inbound payload for scheduling a post.
type CreatePostRequest struct {
	Category  Category  `json:"category"`
	Body      string    `json:"body"`
	PublishAt time.Time `json:"publish_at"`
	MediaRefs []string  `json:"media_refs"`
}

// Validate checks the request against the clock and the minimum lead time
// between now and publication. An empty category is defaulted to general.
func (r *CreatePostRequest) Validate(now time.Time, minLead time.Duration) error {
	if r.Category == "" {
		r.Category = CategoryGeneral
	}
	if !r.Category.IsValid() {
		return ErrInvalidCategory
	}
	if err := validateBody(r.Body); err != nil {
		return err
	}
	if r.PublishAt.IsZero() {
		return ErrMissingPublishAt
	}
	if r.PublishAt.Before(now.Add(minLead)) {
		return ErrPublishTimeTooSoon
	}
	return validateMediaRefs(r.MediaRefs)
}

// PostUpdate carries the mutable fields of a scheduled post. Nil fields are
// left unchanged. ExternalRef is deliberately absent.
type PostUpdate struct {
	Category  *Category  `json:"category,omitempty"`
	Body      *string    `json:"body,omitempty"`
	PublishAt *time.Time `json:"publish_at,omitempty"`
	MediaRefs *[]string  `json:"media_refs,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u *PostUpdate) IsEmpty() bool {
	return u.Category == nil && u.Body == nil && u.PublishAt == nil && u.MediaRefs == nil
}

func (u *PostUpdate) Validate(now time.Time, minLead time.Duration) error {
	if u.Category != nil && !u.Category.IsValid() {
		return ErrInvalidCategory
	}
	if u.Body != nil {
		if err := validateBody(*u.Body); err != nil {
			return err
		}
	}
	if u.PublishAt != nil {
		if u.PublishAt.IsZero() {
			return ErrMissingPublishAt
		}
		if u.PublishAt.Before(now.Add(minLead)) {
			return ErrPublishTimeTooSoon
		}
	}
	if u.MediaRefs != nil {
		return validateMediaRefs(*u.MediaRefs)
	}
	return nil
}

// Apply copies the set fields onto p.
func (u *PostUpdate) Apply(p *ScheduledPost) {
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Body != nil {
		p.Body = strings.TrimSpace(*u.Body)
	}
	if u.PublishAt != nil {
		p.PublishAt = NormalizeInstant(*u.PublishAt)
	}
	if u.MediaRefs != nil {
		p.MediaRefs = append([]string(nil), (*u.MediaRefs)...)
	}
}

func validateBody(body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyBody
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return ErrBodyTooLong
	}
	return nil
}

func validateMediaRefs(refs []string) error {
	if len(refs) > MaxMediaRefs {
		return ErrTooManyMedia
	}
	for _, ref := range refs {
		u, err := url.Parse(ref)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidMediaRef
		}
	}
	return nil
}
