package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gramkeeper/internal/scheduler"
	"gramkeeper/internal/store"
)

var runCurationCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the curation pipeline once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		if !a.sessions.HasSession() {
			return fmt.Errorf("no saved browser session; run 'gramkeeper login' first")
		}

		if err := a.runner.RunCuration(cmd.Context()); err != nil {
			return err
		}

		snap := a.tracker.Snapshot()
		fmt.Printf("Curated %d posts across %d profiles\n", snap.CuratedCount, snap.TotalProfiles)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in interactively and save the browser session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		if err := a.sessions.LoginInteractive(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Session saved.")
		return nil
	},
}

var commentCmd = &cobra.Command{
	Use:   "comment [shortcode] [text...]",
	Short: "Publish a comment on a post through the browser",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		shortcode := args[0]
		text := strings.Join(args[1:], " ")

		res, err := a.commenter.PublishComment(cmd.Context(), shortcode, text)
		if err != nil {
			return err
		}

		if err := a.store.UpdatePostComment(shortcode, text); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if res.Liked {
			if err := a.store.UpdatePostLikeStatus(shortcode, true); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		fmt.Printf("Comment published on %s (liked=%v)\n", shortcode, res.Liked)
		return nil
	},
}

var nextRunCmd = &cobra.Command{
	Use:   "next-run",
	Short: "Print the next scheduled curation time",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer st.Close()

		enabled := false
		if v, err := st.GetSetting(scheduler.SettingEnabled); err == nil {
			enabled = v == "true"
		}
		interval := scheduler.DefaultIntervalHours
		if v, err := st.GetSetting(scheduler.SettingIntervalHours); err == nil {
			if n, err := strconv.Atoi(v); err == nil && n >= 1 {
				interval = n
			}
		}

		next := scheduler.NextRunTime(enabled, interval, time.Now())
		if next == nil {
			fmt.Println("Scheduling is disabled.")
			return nil
		}
		fmt.Printf("Next run at %s (every %d hours)\n", next.Format(time.RFC1123), interval)
		return nil
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage tracked profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer st.Close()

		profiles, err := st.ListProfiles()
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			fmt.Println("No profiles tracked yet.")
			return nil
		}
		for _, p := range profiles {
			state := "enabled"
			if !p.Enabled {
				state = "disabled"
			}
			fmt.Printf("%-24s %-8s curated=%d liked=%d\n", p.Handle, state, p.TotalCurated, p.LikedCurated)
		}
		return nil
	},
}

var profilesAddCmd = &cobra.Command{
	Use:   "add [handle...]",
	Short: "Add (or re-enable) profiles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer st.Close()

		for _, handle := range args {
			if err := st.AddProfile(strings.TrimPrefix(handle, "@")); err != nil {
				return err
			}
		}
		fmt.Printf("Added %d profile(s)\n", len(args))
		return nil
	},
}

var profilesRemoveCmd = &cobra.Command{
	Use:   "remove [handle...]",
	Short: "Disable profiles (curated history is kept)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer st.Close()

		for _, handle := range args {
			if err := st.SetProfileEnabled(strings.TrimPrefix(handle, "@"), false); err != nil {
				return err
			}
		}
		fmt.Printf("Disabled %d profile(s)\n", len(args))
		return nil
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesAddCmd)
	profilesCmd.AddCommand(profilesRemoveCmd)
}
