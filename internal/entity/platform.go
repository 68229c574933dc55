package entity

// Platform is the closed set of publish targets. Adding one means extending
// this list and registering a client for it; dispatch is checked against the
// enum, never against free-form strings.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformBluesky   Platform = "bluesky"
	PlatformReddit    Platform = "reddit"
	PlatformPinterest Platform = "pinterest"
	PlatformBlogger   Platform = "blogger"
)

var allPlatforms = []Platform{
	PlatformTwitter,
	PlatformLinkedIn,
	PlatformFacebook,
	PlatformInstagram,
	PlatformBluesky,
	PlatformReddit,
	PlatformPinterest,
	PlatformBlogger,
}

func Platforms() []Platform {
	out := make([]Platform, len(allPlatforms))
	copy(out, allPlatforms)
	return out
}

func (p Platform) Valid() bool {
	for _, known := range allPlatforms {
		if p == known {
			return true
		}
	}
	return false
}
