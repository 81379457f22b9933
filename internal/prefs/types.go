// Package prefs manages per-user news notification preferences: the form
// that validates a submission, and the sqlite store that keeps the result.
package prefs

// NewsType identifies a kind of news entry.
type NewsType string

const (
	NewsBlogPost NewsType = "blogpost"
	NewsLink     NewsType = "link"
	NewsNews     NewsType = "news"
	NewsPoll     NewsType = "poll"
	NewsVideo    NewsType = "video"
)

type Choice struct {
	Value NewsType `json:"value"`
	Label string   `json:"label"`
}

// NewsChoices is every selectable news type in display order.
var NewsChoices = []Choice{
	{NewsBlogPost, "Blog Post"},
	{NewsLink, "Link"},
	{NewsNews, "News"},
	{NewsPoll, "Poll"},
	{NewsVideo, "Video"},
}

func validNewsType(v string) bool {
	for _, c := range NewsChoices {
		if string(c.Value) == v {
			return true
		}
	}
	return false
}

func allNewsTypes() []string {
	out := make([]string, len(NewsChoices))
	for i, c := range NewsChoices {
		out[i] = string(c.Value)
	}
	return out
}

// Form field names, also used as POST keys.
const (
	FieldOwnNewsApproved           = "allow_notification_own_news_approved"
	FieldOthersNewsPosted          = "allow_notification_others_news_posted"
	FieldOthersNewsNeedsModeration = "allow_notification_others_news_needs_moderation"
)

// Preferences lists, per event, the news types the user wants to hear about.
type Preferences struct {
	UserID                    int64    `json:"user_id"`
	OwnNewsApproved           []string `json:"allow_notification_own_news_approved"`
	OthersNewsPosted          []string `json:"allow_notification_others_news_posted"`
	OthersNewsNeedsModeration []string `json:"allow_notification_others_news_needs_moderation"`
}

// Defaults opts a user into every news type for every event.
func Defaults(userID int64) *Preferences {
	return &Preferences{
		UserID:                    userID,
		OwnNewsApproved:           allNewsTypes(),
		OthersNewsPosted:          allNewsTypes(),
		OthersNewsNeedsModeration: allNewsTypes(),
	}
}

// field returns a pointer to the value backing a form field.
func (p *Preferences) field(name string) *[]string {
	switch name {
	case FieldOwnNewsApproved:
		return &p.OwnNewsApproved
	case FieldOthersNewsPosted:
		return &p.OthersNewsPosted
	case FieldOthersNewsNeedsModeration:
		return &p.OthersNewsNeedsModeration
	}
	return nil
}

type User struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	CanApprove bool   `json:"can_approve"`
}
