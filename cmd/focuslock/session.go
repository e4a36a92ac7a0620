package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focuslock/internal/daemon"
	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
	"github.com/eliteGoblin/focusd/focuslock/internal/token"
	"github.com/eliteGoblin/focusd/focuslock/internal/usecase"
)

var startCmd = &cobra.Command{
	Use:   "start <profile-id>",
	Short: "Start a focus session",
	Long: `Starts a session for the profile. Timer strategies use --timer, or the
profile's default timer when the flag is omitted. Token strategies can
also be started with 'focuslock scan'.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runStart),
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active session",
	Long:  `Stops the active session. Under remote lock only a registered token or the emergency unlock can end it.`,
	RunE:  withApp(runStop),
}

var breakCmd = &cobra.Command{
	Use:   "break",
	Short: "Pause blocking for a while",
}

var breakStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a break",
	RunE:  withApp(runBreakStart),
}

var breakEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the break early",
	RunE:  withApp(runBreakEnd),
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Apply an NFC tag or QR code scan",
	Long: `Applies a scan. With an active session the matching token acts by its
mode (unlock, pause, resume, emergency, remote lock toggle). Without one,
a profile deep link or a token registered on a single profile starts a
session.`,
	RunE: withApp(runScan),
}

var emergencyCmd = &cobra.Command{
	Use:   "emergency",
	Short: "Emergency unlock",
}

var emergencyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the emergency unlock is available",
	RunE:  withApp(runEmergencyStatus),
}

var emergencyUseCmd = &cobra.Command{
	Use:   "use",
	Short: "End the active session with an emergency unlock",
	RunE:  withApp(runEmergencyUse),
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Remote lock",
}

var lockOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Engage remote lock on the active session",
	RunE:  withApp(runLockOn),
}

var lockOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Lift remote lock with a registered token",
	RunE:  withApp(runLockOff),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active session and daemon state",
	RunE:  withApp(runStatus),
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show session statistics and blocked request counts",
	RunE:  withApp(runStats),
}

var (
	timerFlag    time.Duration
	breakMinutes int
	scanNFC      string
	scanQR       string
	statsDays    int
)

func init() {
	startCmd.Flags().DurationVar(&timerFlag, "timer", 0, "Session length for timer strategies, e.g. 45m")
	breakStartCmd.Flags().IntVar(&breakMinutes, "minutes", 0, "Break length (defaults to the profile's)")
	for _, c := range []*cobra.Command{scanCmd, lockOffCmd} {
		c.Flags().StringVar(&scanNFC, "nfc", "", "NFC tag id")
		c.Flags().StringVar(&scanQR, "qr", "", "QR code payload")
		c.MarkFlagsMutuallyExclusive("nfc", "qr")
		c.MarkFlagsOneRequired("nfc", "qr")
	}
	statsCmd.Flags().IntVar(&statsDays, "days", 30, "How many days back to include")

	breakCmd.AddCommand(breakStartCmd)
	breakCmd.AddCommand(breakEndCmd)
	emergencyCmd.AddCommand(emergencyStatusCmd)
	emergencyCmd.AddCommand(emergencyUseCmd)
	lockCmd.AddCommand(lockOnCmd)
	lockCmd.AddCommand(lockOffCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(breakCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(emergencyCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
}

func runStart(cmd *cobra.Command, args []string, a *app) error {
	id, err := a.engine.StartSessionWith(cmd.Context(), args[0], usecase.StartOptions{Timer: timerFlag})
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	fmt.Printf("Session %s started\n", id)
	warnIfNoDaemon(a)
	return nil
}

func runStop(cmd *cobra.Command, args []string, a *app) error {
	if err := a.engine.StopSession(cmd.Context()); err != nil {
		return fmt.Errorf("failed to stop session: %w", err)
	}
	fmt.Println("Session stopped")
	return nil
}

func runBreakStart(cmd *cobra.Command, args []string, a *app) error {
	if err := a.engine.StartBreak(cmd.Context(), breakMinutes); err != nil {
		return fmt.Errorf("failed to start break: %w", err)
	}
	s, err := a.engine.ActiveSession(cmd.Context())
	if err == nil && s.BreakEndsAt != nil {
		fmt.Printf("Break until %s\n", s.BreakEndsAt.Local().Format("15:04"))
		return nil
	}
	fmt.Println("Break started")
	return nil
}

func runBreakEnd(cmd *cobra.Command, args []string, a *app) error {
	if err := a.engine.EndBreak(cmd.Context()); err != nil {
		return fmt.Errorf("failed to end break: %w", err)
	}
	fmt.Println("Break ended, blocking resumed")
	return nil
}

// scanInput returns the scanned id and its source from --nfc or --qr.
func scanInput() (string, domain.TokenSource) {
	if scanNFC != "" {
		if id, ok := token.ParseNFC(scanNFC); ok {
			return id, domain.SourceNFC
		}
		return scanNFC, domain.SourceNFC
	}
	return scanQR, domain.SourceQR
}

func runScan(cmd *cobra.Command, args []string, a *app) error {
	ctx := cmd.Context()
	scanned, source := scanInput()

	_, err := a.engine.ActiveSession(ctx)
	switch {
	case apperrors.Is(err, domain.ErrNoActiveSession):
		out, err := a.engine.StartFromScan(ctx, scanned, source)
		if err != nil {
			return fmt.Errorf("scan did not start a session: %w", err)
		}
		fmt.Printf("Session %s started\n", out.SessionID)
		warnIfNoDaemon(a)
		return nil
	case err != nil:
		return err
	}

	out, err := a.engine.ResolveToken(ctx, scanned, source)
	if err != nil {
		return fmt.Errorf("scan rejected: %w", err)
	}
	fmt.Println(describeOutcome(out))
	return nil
}

func describeOutcome(out usecase.TokenOutcome) string {
	switch out.Action {
	case usecase.ActionEnded:
		return "Session ended"
	case usecase.ActionPaused:
		return "Break started"
	case usecase.ActionResumed:
		return "Blocking resumed"
	case usecase.ActionEmergencyUnlocked:
		return "Emergency unlock used, session ended"
	case usecase.ActionRemoteLocked:
		return "Remote lock engaged"
	case usecase.ActionRemoteUnlocked:
		return "Remote lock lifted"
	case usecase.ActionStarted:
		return "Session " + out.SessionID + " started"
	}
	return fmt.Sprintf("Token recognized (%s), nothing to do", out.Mode)
}

func runEmergencyStatus(cmd *cobra.Command, args []string, a *app) error {
	st, err := a.engine.CheckEmergency(cmd.Context())
	if err != nil {
		return err
	}
	switch st.State {
	case usecase.EmergencyAvailable:
		fmt.Printf("Emergency unlock available (%d of %d left)\n", st.Remaining, st.Max)
	case usecase.EmergencyOnCooldown:
		fmt.Printf("Emergency unlock on cooldown for %s\n",
			usecase.FormatDuration(time.Until(st.CooldownUntil)))
	case usecase.EmergencyNoAttemptsLeft:
		fmt.Println("No emergency unlocks left for this session")
	case usecase.EmergencyDisabled:
		fmt.Println("Emergency unlock is disabled for this profile")
	case usecase.EmergencyNoActiveSession:
		fmt.Println("No active session")
	}
	return nil
}

func runEmergencyUse(cmd *cobra.Command, args []string, a *app) error {
	if err := a.engine.UseEmergencyUnlock(cmd.Context()); err != nil {
		return fmt.Errorf("emergency unlock refused: %w", err)
	}
	fmt.Println("Emergency unlock used, session ended")
	return nil
}

func runLockOn(cmd *cobra.Command, args []string, a *app) error {
	if err := a.engine.ActivateRemoteLock(cmd.Context(), "cli"); err != nil {
		return fmt.Errorf("failed to engage remote lock: %w", err)
	}
	fmt.Println("Remote lock engaged. Only a registered token or the emergency unlock can end this session.")
	return nil
}

func runLockOff(cmd *cobra.Command, args []string, a *app) error {
	ctx := cmd.Context()
	scanned, source := scanInput()
	m, err := a.engine.MatchToken(ctx, scanned, source)
	if err != nil {
		return fmt.Errorf("token not recognized: %w", err)
	}
	if err := a.engine.DeactivateRemoteLock(ctx, m); err != nil {
		return fmt.Errorf("failed to lift remote lock: %w", err)
	}
	fmt.Println("Remote lock lifted")
	return nil
}

func runStatus(cmd *cobra.Command, args []string, a *app) error {
	ctx := cmd.Context()
	now := a.clock.Now()

	fmt.Println("\n=== focuslock Status ===")
	if pid, ok := daemon.NewPIDFile(a.cfg.DataDir).Running(); ok {
		fmt.Printf("Daemon: running (pid %d)\n", pid)
	} else {
		fmt.Println("Daemon: NOT RUNNING (run 'focuslock daemon start')")
	}

	s, err := a.engine.ActiveSession(ctx)
	if apperrors.Is(err, domain.ErrNoActiveSession) {
		fmt.Println("Session: none")
		fmt.Println("========================")
		return nil
	}
	if err != nil {
		return err
	}

	name := s.ProfileID
	if p, err := a.profiles.Get(ctx, s.ProfileID); err == nil {
		name = p.Name
	}
	fmt.Printf("Session: %s (%s)\n", s.ID, name)
	fmt.Printf("Started: %s\n", s.StartTime.Local().Format("2006-01-02 15:04"))
	fmt.Printf("Focused: %s\n", usecase.FormatClock(s.TotalActiveDuration(now)))
	if s.TimerDuration != nil {
		left := *s.TimerDuration - s.TotalActiveDuration(now)
		if left < 0 {
			left = 0
		}
		fmt.Printf("Timer: %s left\n", usecase.FormatClock(left))
	}
	if s.IsPaused() {
		if s.BreakEndsAt != nil {
			fmt.Printf("On break until %s\n", s.BreakEndsAt.Local().Format("15:04"))
		} else {
			fmt.Println("Paused")
		}
	}
	if s.IsRemoteLocked() {
		fmt.Println("Remote lock: ENGAGED")
	}

	fmt.Println("\nBlocked apps:")
	printList(s.BlockedApps)
	fmt.Println("Blocked domains:")
	if !s.WebBlockingEnabled {
		fmt.Println("  (web blocking off)")
	} else {
		printList(s.BlockedDomains)
	}
	fmt.Println("========================")
	return nil
}

func runStats(cmd *cobra.Command, args []string, a *app) error {
	ctx := cmd.Context()
	now := a.clock.Now()
	since := now.AddDate(0, 0, -statsDays)

	sessions, err := a.store.ListSessions(ctx, since)
	if err != nil {
		return err
	}
	st := usecase.ComputeStatistics(sessions, now)

	fmt.Printf("\n=== Last %d days ===\n", statsDays)
	fmt.Printf("Sessions: %d\n", st.Sessions)
	fmt.Printf("Focus time: %s\n", usecase.FormatDuration(st.Total))
	fmt.Printf("Average: %s\n", usecase.FormatDuration(st.Average))
	fmt.Printf("Longest: %s\n", usecase.FormatDuration(st.Longest))
	fmt.Printf("Streak: %d days\n", st.CurrentStreak)

	counts, err := a.store.CountBlocks(ctx, since)
	if err != nil {
		return err
	}
	if len(counts) > 0 {
		domains := make([]string, 0, len(counts))
		for d := range counts {
			domains = append(domains, d)
		}
		sort.Slice(domains, func(i, j int) bool {
			if counts[domains[i]] != counts[domains[j]] {
				return counts[domains[i]] > counts[domains[j]]
			}
			return domains[i] < domains[j]
		})
		fmt.Println("\nBlocked requests:")
		for _, d := range domains {
			fmt.Printf("  %-30s %d\n", d, counts[d])
		}
	}
	fmt.Println("====================")
	return nil
}

func warnIfNoDaemon(a *app) {
	if _, ok := daemon.NewPIDFile(a.cfg.DataDir).Running(); !ok {
		fmt.Println("Warning: the daemon is not running, nothing is blocked until 'focuslock daemon start'")
	}
}
