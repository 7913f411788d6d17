package config

const (
	// MaxProjectionNameLength is the maximum length for projection names.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255).
	MaxProjectionNameLength = 255

	// MaxSectionTitleLength is the maximum length for section titles.
	MaxSectionTitleLength = 255

	// MaxTagLength is the maximum length of a single content tag.
	MaxTagLength = 64

	// MaxTagsPerItem bounds the tags on one content item.
	MaxTagsPerItem = 32

	// MaxSectionTextLength bounds manual section edits (characters).
	MaxSectionTextLength = 200_000

	// MaxLockReasonLength is the maximum length of a lock reason.
	MaxLockReasonLength = 500

	// ContentPageSize is the default and maximum page size for content listing.
	ContentPageSize    = 100
	MaxContentPageSize = 1000
)
