package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/preset"
	"github.com/eliteGoblin/focusd/focuslock/internal/token"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage blocking profiles",
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a profile",
	Long: `Creates a profile from flags and presets. Presets add their apps and
domains to the ones given with --app and --domain.

Example:
  focuslock profile create Work --preset social --strategy nfc_manual --emergency-attempts 2`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runProfileCreate),
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE:  withApp(runProfileList),
}

var profileShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runProfileShow),
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a profile and its session history",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runProfileDelete),
}

var profileAddTokenCmd = &cobra.Command{
	Use:   "add-token <profile-id> <token-id>",
	Short: "Register a physical NFC tag or QR code with a profile",
	Long: `Registers a token. NFC tag ids may be typed as "04:A1:B2" or "04a1b2";
they are stored as uppercase hex. Modes: UNLOCK, PAUSE, RESUME, EMERGENCY,
REMOTE_LOCK_TOGGLE, CUSTOM.`,
	Args: cobra.ExactArgs(2),
	RunE: withApp(runProfileAddToken),
}

var profileRemoveTokenCmd = &cobra.Command{
	Use:   "remove-token <profile-id> <token-id>",
	Short: "Remove a token from a profile",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runProfileRemoveToken),
}

var presetListCmd = &cobra.Command{
	Use:   "presets",
	Short: "List built-in presets",
	Run:   runPresetList,
}

var profileFlags struct {
	apps              []string
	domains           []string
	presets           []string
	strategy          string
	timerMinutes      int
	breaks            bool
	breakMinutes      int
	strict            bool
	web               bool
	emergencyAttempts int
	emergencyCooldown int
	remoteLock        bool
	scheduleDays      []string
	scheduleStart     string
	scheduleEnd       string
}

var tokenFlags struct {
	mode  string
	label string
}

func init() {
	f := profileCreateCmd.Flags()
	f.StringSliceVar(&profileFlags.apps, "app", nil, "Process name to block (repeatable)")
	f.StringSliceVar(&profileFlags.domains, "domain", nil, "Domain to block, subdomains included (repeatable)")
	f.StringSliceVar(&profileFlags.presets, "preset", nil, "Preset to apply (see 'focuslock profile presets')")
	f.StringVar(&profileFlags.strategy, "strategy", domain.StrategyManual, "Blocking strategy id")
	f.IntVar(&profileFlags.timerMinutes, "timer-minutes", 0, "Default timer for timer strategies")
	f.BoolVar(&profileFlags.breaks, "breaks", false, "Allow breaks")
	f.IntVar(&profileFlags.breakMinutes, "break-minutes", domain.DefaultBreakMinutes, "Break length")
	f.BoolVar(&profileFlags.strict, "strict", false, "Strict mode")
	f.BoolVar(&profileFlags.web, "web", true, "Enable web blocking for the profile's domains")
	f.IntVar(&profileFlags.emergencyAttempts, "emergency-attempts", 0, "Emergency unlocks per session (0 disables)")
	f.IntVar(&profileFlags.emergencyCooldown, "emergency-cooldown", 0, "Minutes between emergency unlocks")
	f.BoolVar(&profileFlags.remoteLock, "remote-lock", false, "Allow remote lock")
	f.StringSliceVar(&profileFlags.scheduleDays, "schedule-days", nil, "Days the profile starts on its own (mon,tue,...)")
	f.StringVar(&profileFlags.scheduleStart, "schedule-start", "", "Scheduled start, HH:MM")
	f.StringVar(&profileFlags.scheduleEnd, "schedule-end", "", "Scheduled end, HH:MM")

	profileAddTokenCmd.Flags().StringVar(&tokenFlags.mode, "mode", string(domain.TokenUnlock), "Token mode")
	profileAddTokenCmd.Flags().StringVar(&tokenFlags.label, "label", "", "Human readable label, e.g. \"Desk Tag\"")

	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileAddTokenCmd)
	profileCmd.AddCommand(profileRemoveTokenCmd)
	profileCmd.AddCommand(presetListCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileCreate(cmd *cobra.Command, args []string, a *app) error {
	p := &domain.Profile{
		Name:               args[0],
		BlockedApps:        profileFlags.apps,
		BlockedDomains:     profileFlags.domains,
		StrategyID:         profileFlags.strategy,
		BreaksEnabled:      profileFlags.breaks,
		BreakMinutes:       profileFlags.breakMinutes,
		StrictMode:         profileFlags.strict,
		WebBlockingEnabled: profileFlags.web,
		Emergency: domain.EmergencySettings{
			Enabled:         profileFlags.emergencyAttempts > 0,
			MaxAttempts:     profileFlags.emergencyAttempts,
			CooldownMinutes: profileFlags.emergencyCooldown,
		},
		RemoteLockEnabled: profileFlags.remoteLock,
	}
	if profileFlags.timerMinutes > 0 {
		p.StrategyData = fmt.Sprint(profileFlags.timerMinutes)
	}

	if len(profileFlags.presets) > 0 {
		if err := preset.NewRegistry().Apply(p, profileFlags.presets...); err != nil {
			return err
		}
		p.WebBlockingEnabled = profileFlags.web && len(p.BlockedDomains) > 0
	}

	if len(profileFlags.scheduleDays) > 0 {
		days, err := parseDays(profileFlags.scheduleDays)
		if err != nil {
			return err
		}
		p.Schedule = &domain.Schedule{
			Days:  days,
			Start: profileFlags.scheduleStart,
			End:   profileFlags.scheduleEnd,
		}
	}

	created, err := a.profiles.Create(cmd.Context(), p)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	fmt.Printf("Created profile %q (%s)\n", created.Name, created.ID)
	fmt.Printf("Deep link: %s\n", token.ProfileLink(created.ID))
	return nil
}

func runProfileList(cmd *cobra.Command, args []string, a *app) error {
	profiles, err := a.profiles.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles. Create one with 'focuslock profile create <name>'.")
		return nil
	}

	fmt.Println("\n=== Profiles ===")
	for _, p := range profiles {
		fmt.Printf("  %-36s  %-20s  %-12s  %d apps, %d domains\n",
			p.ID, p.Name, p.StrategyID, len(p.BlockedApps), len(p.BlockedDomains))
	}
	fmt.Println("================")
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string, a *app) error {
	p, err := a.profiles.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printProfile(p)
	return nil
}

func printProfile(p *domain.Profile) {
	strategy := p.Strategy()

	fmt.Printf("\n=== %s ===\n", p.Name)
	fmt.Printf("ID: %s\n", p.ID)
	fmt.Printf("Strategy: %s (%s)\n", strategy.Name, strategy.ID)
	if p.StrategyData != "" {
		fmt.Printf("Strategy data: %s\n", p.StrategyData)
	}
	fmt.Printf("Breaks: %s\n", onOff(p.BreaksEnabled, fmt.Sprintf("%d min", p.EffectiveBreakMinutes())))
	fmt.Printf("Web blocking: %s\n", onOff(p.WebBlockingEnabled, ""))
	fmt.Printf("Remote lock: %s\n", onOff(p.RemoteLockEnabled, ""))
	fmt.Printf("Emergency unlock: %s\n", onOff(p.Emergency.Enabled,
		fmt.Sprintf("%d per session, %d min cooldown", p.Emergency.MaxAttempts, p.Emergency.CooldownMinutes)))
	if p.Schedule != nil {
		days := make([]string, len(p.Schedule.Days))
		for i, d := range p.Schedule.Days {
			days[i] = d.String()[:3]
		}
		fmt.Printf("Schedule: %s %s-%s\n", strings.Join(days, ","), p.Schedule.Start, p.Schedule.End)
	}

	fmt.Println("\nBlocked apps:")
	printList(p.BlockedApps)
	fmt.Println("Blocked domains:")
	printList(p.BlockedDomains)
	fmt.Println("Tokens:")
	if len(p.Tokens) == 0 {
		fmt.Println("  (none)")
	}
	for _, t := range p.Tokens {
		fmt.Printf("  - %s [%s] %s\n", t.TokenID, t.Mode, t.Label)
	}
	fmt.Printf("\nDeep link: %s\n", token.ProfileLink(p.ID))
}

func runProfileDelete(cmd *cobra.Command, args []string, a *app) error {
	if err := a.engine.PurgeProfile(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	fmt.Printf("Deleted profile %s\n", args[0])
	return nil
}

func runProfileAddToken(cmd *cobra.Command, args []string, a *app) error {
	id := args[1]
	if nfc, ok := token.ParseNFC(id); ok {
		id = nfc
	}
	t := domain.PhysicalToken{
		TokenID: id,
		Mode:    domain.TokenMode(strings.ToUpper(tokenFlags.mode)),
		Label:   tokenFlags.label,
	}
	if _, err := a.profiles.AddToken(cmd.Context(), args[0], t); err != nil {
		return fmt.Errorf("failed to add token: %w", err)
	}
	fmt.Printf("Added %s token %s\n", t.Mode, t.TokenID)
	return nil
}

func runProfileRemoveToken(cmd *cobra.Command, args []string, a *app) error {
	id := args[1]
	if nfc, ok := token.ParseNFC(id); ok {
		id = nfc
	}
	if _, err := a.profiles.RemoveToken(cmd.Context(), args[0], id); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	fmt.Printf("Removed token %s\n", id)
	return nil
}

func runPresetList(cmd *cobra.Command, args []string) {
	fmt.Println("\n=== Presets ===")
	for _, p := range preset.NewRegistry().List() {
		fmt.Printf("\n[%s] %s\n", p.ID(), p.Name())
		fmt.Println("  Apps:")
		printList(p.Apps())
		fmt.Println("  Domains:")
		printList(p.Domains())
	}
	fmt.Println("\n===============")
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func parseDays(values []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := weekdays[key]
		if !ok {
			return nil, fmt.Errorf("unknown day %q", v)
		}
		days = append(days, d)
	}
	return days, nil
}

func onOff(enabled bool, detail string) string {
	if !enabled {
		return "off"
	}
	if detail == "" {
		return "on"
	}
	return "on (" + detail + ")"
}

func printList(items []string) {
	if len(items) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}
