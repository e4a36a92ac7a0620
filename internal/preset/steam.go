package preset

// SteamPreset blocks the Steam client and store.
type SteamPreset struct{}

// NewSteamPreset creates the Steam preset.
func NewSteamPreset() *SteamPreset {
	return &SteamPreset{}
}

func (p *SteamPreset) ID() string {
	return "steam"
}

func (p *SteamPreset) Name() string {
	return "Steam"
}

// Apps returns Steam process names on Linux and macOS.
func (p *SteamPreset) Apps() []string {
	return []string{
		"steam",
		"steam_osx",
		"steamwebhelper",
		"Steam Helper",
	}
}

func (p *SteamPreset) Domains() []string {
	return []string{
		"steampowered.com",
		"steamcommunity.com",
		"steamstatic.com",
	}
}
