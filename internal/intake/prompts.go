package intake

import (
	"fmt"

	"github.com/civicline/civicline/pkg/civic"
)

// User-facing prompts. Every transition emits exactly one of these; no state
// change is silent.

const (
	promptHelp = "I'm a complaint registration bot. To report an issue, use:\n" +
		"/ticket <your complaint>\n\n" +
		"Or send /help to see all available commands."

	promptAskQuery = "📝 Please describe your complaint in detail.\n\n" +
		"Include what the issue is, where it is, and how urgent it is.\n" +
		"Example: \"Large pothole on Main Street near City Hall\"\n\n" +
		"Send /cancel to cancel."

	promptCancelled = "❌ Operation cancelled. Use /ticket to report a new complaint."

	promptYesOrNo = "Please reply with \"yes\" or \"no\"."

	promptLocationNoSession = "📍 Location received! Use /ticket to start a complaint first.\n" +
		"You can share your location again once the complaint is open."

	promptMediaNoSession = "📸 Please use /ticket first to start a complaint, then add media when prompted."

	promptMediaRetry = "❌ Couldn't receive that file. Please resend it, or reply \"done\" to finish."

	promptNeedOneMedia = "❌ No media received yet. Send at least one photo or video, or /cancel to abort."
)

func promptConfirmMedia(query string) string {
	return fmt.Sprintf("📸 Would you like to add photos or videos to your complaint?\n\n"+
		"\"%s\"\n\n"+
		"Visual evidence helps us resolve issues faster!\n\n"+
		"✅ Reply \"yes\" to upload media\n"+
		"❌ Reply \"no\" to skip and create the ticket\n"+
		"🚫 Send /cancel to cancel", query)
}

func promptSendMedia(p Policy) string {
	return fmt.Sprintf("📸 Great! Send your photos or videos now, one at a time.\n\n"+
		"• Up to %d media files per complaint\n"+
		"• Reply \"done\" when finished\n"+
		"• Share your location 📍 to help us find the problem\n"+
		"• Send /cancel to cancel", p.MediaCap)
}

func promptMediaReceived(item *civic.MediaItem, count int, p Policy) string {
	kind := "Photo"
	if item.IsVideo() {
		kind = "Video"
	}
	return fmt.Sprintf("✅ %s %d received! (%d/%d)\n\n"+
		"Send more photos/videos or reply \"done\" to create the ticket.", kind, count, count, p.MediaCap)
}

func promptSendOrDone(count int, p Policy) string {
	return fmt.Sprintf("📸 Please send photos/videos or reply \"done\" when finished.\n"+
		"Media uploaded: %d/%d", count, p.MediaCap)
}

func promptLocationSaved(loc *civic.Location) string {
	return fmt.Sprintf("✅ Location saved! 📍 %.4f, %.4f\n\n"+
		"Continue sending photos/videos or reply \"done\" to create the ticket.",
		loc.Latitude, loc.Longitude)
}
