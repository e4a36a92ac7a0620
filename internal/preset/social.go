package preset

// SocialPreset blocks the large social feeds.
type SocialPreset struct{}

// NewSocialPreset creates the social media preset.
func NewSocialPreset() *SocialPreset {
	return &SocialPreset{}
}

func (p *SocialPreset) ID() string {
	return "social"
}

func (p *SocialPreset) Name() string {
	return "Social media"
}

func (p *SocialPreset) Apps() []string {
	return []string{"discord"}
}

func (p *SocialPreset) Domains() []string {
	return []string{
		"facebook.com",
		"instagram.com",
		"reddit.com",
		"tiktok.com",
		"twitter.com",
		"x.com",
		"youtube.com",
	}
}
