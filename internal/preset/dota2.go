package preset

// Dota2Preset blocks the Dota 2 game client.
type Dota2Preset struct{}

// NewDota2Preset creates the Dota 2 preset.
func NewDota2Preset() *Dota2Preset {
	return &Dota2Preset{}
}

func (p *Dota2Preset) ID() string {
	return "dota2"
}

func (p *Dota2Preset) Name() string {
	return "Dota 2"
}

func (p *Dota2Preset) Apps() []string {
	return []string{
		"dota2",
		"dota_osx64",
		"dota2_launcher",
	}
}

func (p *Dota2Preset) Domains() []string {
	return []string{"dota2.com"}
}
