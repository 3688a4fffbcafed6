package resolver

// lifecycleExpireAfterDays is the fixed age window for the commit-hash tag
// rules. A constant, not a parameter, in the current scope.
const lifecycleExpireAfterDays = 90

// Tag selection status values.
const (
	TagStatusTagged   = "tagged"
	TagStatusUntagged = "untagged"
)

// Retention count types. The executor interprets imageCountMoreThan as
// "keep the newest N" and sinceImagePushed as "expire after N days".
const (
	CountTypeImageCountMoreThan = "imageCountMoreThan"
	CountTypeSinceImagePushed   = "sinceImagePushed"
)

// TagSelector selects which images a lifecycle rule matches.
type TagSelector struct {
	// Status is tagged or untagged.
	Status string `json:"status"`

	// TagPrefixes narrows tagged selection by leading characters. Empty for
	// untagged rules.
	TagPrefixes []string `json:"tag_prefixes,omitempty"`
}

// RetentionPolicy is the action side of a lifecycle rule.
type RetentionPolicy struct {
	// CountType is imageCountMoreThan or sinceImagePushed.
	CountType string `json:"count_type"`

	// Count is the image count or the day count, per CountType.
	Count int `json:"count"`
}

// LifecycleRule is one priority-ranked expiration rule for image storage.
type LifecycleRule struct {
	// Priority orders evaluation; the executor applies rules ascending with
	// first-match semantics, so reordering changes retention behavior.
	Priority int `json:"priority"`

	Description string          `json:"description"`
	Selector    TagSelector     `json:"selector"`
	Retention   RetentionPolicy `json:"retention"`
}

var (
	digitPrefixes     = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}
	hexLetterPrefixes = []string{"a", "b", "c", "d", "e", "f"}
)

// CompileLifecycleRules translates the keep count into the fixed four-rule
// policy, in priority order:
//
//  1. the floating "latest" tag, kept to the most recent keepCount images so
//     it never ages out under the push-date rules
//  2. commit-hash tags with a digit lead character, expired 90 days after push
//  3. commit-hash tags with a hex-letter lead character, same window
//  4. untagged intermediate build artifacts, kept to the most recent keepCount
//
// Rules 2 and 3 partition commit-hash tags by leading character so both
// halves of the hex alphabet are covered. Rule 1 takes its count from the
// untagged keep parameter even though it governs "latest"; the parameter
// name is kept as-is to match the deployed configuration surface.
func CompileLifecycleRules(untaggedKeepCount int) []LifecycleRule {
	return []LifecycleRule{
		{
			Priority:    1,
			Description: "keep only recent latest-tagged images",
			Selector: TagSelector{
				Status:      TagStatusTagged,
				TagPrefixes: []string{"latest"},
			},
			Retention: RetentionPolicy{
				CountType: CountTypeImageCountMoreThan,
				Count:     untaggedKeepCount,
			},
		},
		{
			Priority:    2,
			Description: "expire digit-leading commit tags after 90 days",
			Selector: TagSelector{
				Status:      TagStatusTagged,
				TagPrefixes: digitPrefixes,
			},
			Retention: RetentionPolicy{
				CountType: CountTypeSinceImagePushed,
				Count:     lifecycleExpireAfterDays,
			},
		},
		{
			Priority:    3,
			Description: "expire hex-letter-leading commit tags after 90 days",
			Selector: TagSelector{
				Status:      TagStatusTagged,
				TagPrefixes: hexLetterPrefixes,
			},
			Retention: RetentionPolicy{
				CountType: CountTypeSinceImagePushed,
				Count:     lifecycleExpireAfterDays,
			},
		},
		{
			Priority:    4,
			Description: "bound untagged build artifacts",
			Selector: TagSelector{
				Status: TagStatusUntagged,
			},
			Retention: RetentionPolicy{
				CountType: CountTypeImageCountMoreThan,
				Count:     untaggedKeepCount,
			},
		},
	}
}
