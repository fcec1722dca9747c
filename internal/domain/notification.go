package domain

import "time"

// ArchivedNotification records a scheduled post that was confirmed live.
// SourceID is the id of the post it was archived from; at most one record
// exists per source.
type ArchivedNotification struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	Category   Category  `json:"category"`
	Body       string    `json:"body"`
	PublishAt  time.Time `json:"publish_at"`
	MediaRefs  []string  `json:"media_refs"`
	ArchivedAt time.Time `json:"archived_at"`
}

// NewArchivedNotification derives the archive record for p.
func NewArchivedNotification(id string, p *ScheduledPost, archivedAt time.Time) *ArchivedNotification {
	return &ArchivedNotification{
		ID:         id,
		SourceID:   p.ID,
		Category:   p.Category,
		Body:       p.Body,
		PublishAt:  p.PublishAt,
		MediaRefs:  append([]string(nil), p.MediaRefs...),
		ArchivedAt: archivedAt.UTC(),
	}
}
