package domain

// Commands understood by the display surface protocol.
const (
	// Inbound
	CommandReady              = "ready"
	CommandGetNextImage       = "getNextImage"
	CommandRequestNewImage    = "requestNewImage"
	CommandRequestNewCategory = "requestNewCategory"
	CommandUpdateSettings     = "updateSettings"
	CommandGetSettings        = "getSettings"

	// Outbound
	CommandUpdateImage     = "updateImage"
	CommandOpenSettings    = "openSettings"
	CommandRestoreSettings = "restoreSettings"
	CommandSettingsSaved   = "settingsSaved"
)

// InboundMessage is a request sent by a display surface.
// Settings fields are only read for updateSettings.
type InboundMessage struct {
	Command      string  `json:"command" binding:"required"`
	AllowNSFW    *bool   `json:"allowNsfw,omitempty"`
	AutoRefresh  *bool   `json:"autoRefresh,omitempty"`
	RefreshDelay *int    `json:"refreshDelay,omitempty"`
	Provider     *string `json:"provider,omitempty"`
}

// OutboundMessage is pushed to every connected display surface.
type OutboundMessage struct {
	Command      string `json:"command"`
	ImageURL     string `json:"imageUrl,omitempty"`
	Category     string `json:"category,omitempty"`
	RefreshDelay *int   `json:"refreshDelay,omitempty"`
	AllowNSFW    *bool  `json:"allowNsfw,omitempty"`
	AutoRefresh  *bool  `json:"autoRefresh,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Message      string `json:"message,omitempty"`
}

// UpdateImageMessage builds the updateImage push for an image.
func UpdateImageMessage(img Image, refreshDelay int) OutboundMessage {
	return OutboundMessage{
		Command:      CommandUpdateImage,
		ImageURL:     img.URL,
		Category:     img.Category,
		RefreshDelay: &refreshDelay,
	}
}

// RestoreSettingsMessage builds the restoreSettings push for a snapshot.
func RestoreSettingsMessage(s Settings) OutboundMessage {
	nsfw, auto, delay := s.AllowNSFW, s.AutoRefresh, s.RefreshDelay
	return OutboundMessage{
		Command:      CommandRestoreSettings,
		AllowNSFW:    &nsfw,
		AutoRefresh:  &auto,
		RefreshDelay: &delay,
		Provider:     string(s.Provider),
	}
}

// OpenSettingsMessage asks the surface to show its settings panel.
func OpenSettingsMessage() OutboundMessage {
	return OutboundMessage{Command: CommandOpenSettings}
}

// SettingsSavedMessage confirms a settings update to the surface.
func SettingsSavedMessage(text string) OutboundMessage {
	return OutboundMessage{Command: CommandSettingsSaved, Message: text}
}
