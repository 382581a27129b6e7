package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// ProfilesConfig holds all named tracker profiles and tracks which one is
// active.
type ProfilesConfig struct {
	Active   string             `toml:"active"`
	Profiles map[string]Profile `toml:"profiles"`
}

// Profile is a named set of tracker and bus settings. Values act as
// defaults: an explicitly set FOUNDRY_* variable always wins.
type Profile struct {
	Tracker     string `toml:"tracker"`
	GitHubRepo  string `toml:"github_repo,omitempty"`
	GitHubToken string `toml:"github_token,omitempty"`
	DatabaseURL string `toml:"database_url,omitempty"`
	NATSURL     string `toml:"nats_url,omitempty"`
	Project     string `toml:"project,omitempty"`
	Description string `toml:"description,omitempty"`
}

func profileConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".foundry")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "profiles.toml"), nil
}

func loadProfilesConfig() (ProfilesConfig, error) {
	path, err := profileConfigPath()
	if err != nil {
		return ProfilesConfig{}, err
	}
	var cfg ProfilesConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return ProfilesConfig{Profiles: map[string]Profile{}}, nil
		}
		return ProfilesConfig{}, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return cfg, nil
}

func saveProfilesConfig(cfg ProfilesConfig) error {
	path, err := profileConfigPath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// applyActiveProfile exports the active profile's values into the
// environment for keys the user has not set, so config.Load sees them as
// defaults.
func applyActiveProfile() error {
	cfg, err := loadProfilesConfig()
	if err != nil || cfg.Active == "" {
		return err
	}
	p, ok := cfg.Profiles[cfg.Active]
	if !ok {
		return fmt.Errorf("active profile %q not found in profiles.toml", cfg.Active)
	}
	defaults := map[string]string{
		"FOUNDRY_TRACKER":      p.Tracker,
		"FOUNDRY_GITHUB_REPO":  p.GitHubRepo,
		"FOUNDRY_GITHUB_TOKEN": p.GitHubToken,
		"FOUNDRY_DATABASE_URL": p.DatabaseURL,
		"FOUNDRY_NATS_URL":     p.NATSURL,
	}
	for key, val := range defaults {
		if val == "" {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return err
		}
	}
	if p.Project != "" && !rootCmd.PersistentFlags().Changed("project") && os.Getenv("FOUNDRY_PROJECT") == "" {
		project = p.Project
	}
	return nil
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage named tracker profiles",
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or update a named profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		tracker, _ := cmd.Flags().GetString("tracker")
		repo, _ := cmd.Flags().GetString("github-repo")
		token, _ := cmd.Flags().GetString("github-token")
		dbURL, _ := cmd.Flags().GetString("database-url")
		natsURL, _ := cmd.Flags().GetString("nats")
		proj, _ := cmd.Flags().GetString("default-project")
		desc, _ := cmd.Flags().GetString("description")

		cfg, err := loadProfilesConfig()
		if err != nil {
			return err
		}
		cfg.Profiles[name] = Profile{
			Tracker:     tracker,
			GitHubRepo:  repo,
			GitHubToken: token,
			DatabaseURL: dbURL,
			NATSURL:     natsURL,
			Project:     proj,
			Description: desc,
		}
		if err := saveProfilesConfig(cfg); err != nil {
			return err
		}
		fmt.Printf("profile %q added (%s)\n", name, tracker)
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg, err := loadProfilesConfig()
		if err != nil {
			return err
		}
		if _, ok := cfg.Profiles[name]; !ok {
			return fmt.Errorf("profile %q not found", name)
		}
		delete(cfg.Profiles, name)
		if cfg.Active == name {
			cfg.Active = ""
		}
		if err := saveProfilesConfig(cfg); err != nil {
			return err
		}
		fmt.Printf("profile %q removed\n", name)
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadProfilesConfig()
		if err != nil {
			return err
		}
		if len(cfg.Profiles) == 0 {
			fmt.Println("no profiles configured")
			return nil
		}
		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tTRACKER\tTARGET\tDESCRIPTION")
		for _, name := range names {
			p := cfg.Profiles[name]
			marker := "  "
			if name == cfg.Active {
				marker = "* "
			}
			target := p.GitHubRepo
			if p.Tracker == "postgres" {
				target = "postgres"
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", marker, name, p.Tracker, target, p.Description)
		}
		return w.Flush()
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg, err := loadProfilesConfig()
		if err != nil {
			return err
		}
		if _, ok := cfg.Profiles[name]; !ok {
			return fmt.Errorf("profile %q not found", name)
		}
		cfg.Active = name
		if err := saveProfilesConfig(cfg); err != nil {
			return err
		}
		fmt.Printf("active profile set to %q\n", name)
		return nil
	},
}

func init() {
	profileAddCmd.Flags().String("tracker", "github", "tracker backend (github, postgres, or memory)")
	profileAddCmd.Flags().String("github-repo", "", "owner/repo for the github tracker")
	profileAddCmd.Flags().String("github-token", "", "token for the github tracker")
	profileAddCmd.Flags().String("database-url", "", "connection URL for the postgres tracker")
	profileAddCmd.Flags().String("nats", "", "NATS URL for the event bus")
	profileAddCmd.Flags().String("default-project", "", "default project namespace")
	profileAddCmd.Flags().String("description", "", "human-readable description")

	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileRemoveCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileUseCmd)
}
