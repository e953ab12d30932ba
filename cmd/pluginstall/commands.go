package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joncooperworks/pluginstall/installer"
)

func newMakePluginCmd(a *app) *cobra.Command {
	var workingID string
	cmd := &cobra.Command{
		Use:   "make-plugin <internal-name>",
		Short: "Print a profile plugin entry for an installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withInstaller(cmd.Context(), func(inst *installer.Installer) error {
				out, err := inst.CreatePlugin(cmd.Context(), args[0], workingID)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&workingID, "working-id", "", "working plugin id (generated when empty)")
	return cmd
}

func newMakeRepoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "make-repo <url>",
		Short: "Print a third-party repository entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withInstaller(cmd.Context(), func(inst *installer.Installer) error {
				out, err := inst.CreateRepo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func printResult(cmd *cobra.Command, r *installer.InstallResult) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "installed %s %s id=%s dir=%s\n", r.InternalName, r.Version, r.WorkingID, r.Dir)
}

func newInstallCmd(a *app) *cobra.Command {
	var repoURL string
	cmd := &cobra.Command{
		Use:   "install <internal-name> <download-url>",
		Short: "Download, complete and install a plugin archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withInstaller(cmd.Context(), func(inst *installer.Installer) error {
				res, err := inst.InstallFromURL(cmd.Context(), installer.InstallRequest{
					InternalName: args[0],
					URL:          args[1],
					RepoURL:      repoURL,
				})
				if err != nil {
					return err
				}
				printResult(cmd, res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&repoURL, "repo-url", "", "repository the plugin was installed from")
	return cmd
}

func newInstallRepoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install-repo <repo-url> <internal-name>...",
		Short: "Install plugins listed in a repository",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withInstaller(cmd.Context(), func(inst *installer.Installer) error {
				results, err := inst.InstallFromRepository(cmd.Context(), args[0], args[1:]...)

				names := make([]string, 0, len(results))
				for name := range results {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					printResult(cmd, results[name])
				}
				return err
			})
		},
	}
}

func newCheckPathCmd(a *app) *cobra.Command {
	var create bool
	cmd := &cobra.Command{
		Use:   "check-path <path>",
		Short: "Report whether a directory can hold installed plugins",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withInstaller(cmd.Context(), func(inst *installer.Installer) error {
				valid, err := inst.CheckPathValidity(cmd.Context(), args[0], create)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), valid)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&create, "create", false, "create the directory if it does not exist")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	token := &cobra.Command{Use: "token", Short: "Manage repository bearer tokens"}

	token.AddCommand(&cobra.Command{
		Use:   "set <host> <token>",
		Short: "Store a token for a repository host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			if err := store.SetToken(args[0], args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stored token for %s\n", args[0])
			return nil
		},
	})

	token.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List hosts with stored tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			hosts, err := store.Hosts()
			if err != nil {
				return err
			}
			if len(hosts) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no tokens")
				return nil
			}
			for _, host := range hosts {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), host)
			}
			return nil
		},
	})

	token.AddCommand(&cobra.Command{
		Use:   "remove <host>",
		Short: "Delete the token for a repository host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			return store.RemoveToken(args[0])
		},
	})
	return token
}

func newConfigCmd(a *app) *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Read or replace the launcher configuration"}

	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the launcher configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			layout, err := a.layout()
			if err != nil {
				return err
			}
			data, ok, err := layout.ReadConfig()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no launcher config at %s", layout.ConfigPath())
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), data)
			return nil
		},
	})

	cfg.AddCommand(&cobra.Command{
		Use:   "write <file|->",
		Short: "Replace the launcher configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := a.layout()
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return layout.WriteConfig(data)
		},
	})
	return cfg
}

func newPluginConfigCmd(a *app) *cobra.Command {
	pc := &cobra.Command{Use: "plugin-config", Short: "Read or replace a plugin's configuration"}

	pc.AddCommand(&cobra.Command{
		Use:   "show <internal-name>",
		Short: "Print a plugin's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := a.layout()
			if err != nil {
				return err
			}
			data, err := layout.ReadPluginConfig(args[0])
			if isNotExist(err) {
				return fmt.Errorf("no config for plugin %s", args[0])
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), data)
			return nil
		},
	})

	pc.AddCommand(&cobra.Command{
		Use:   "write <internal-name> <file|->",
		Short: "Replace a plugin's configuration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := a.layout()
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			return layout.WritePluginConfig(args[0], data)
		},
	})
	return pc
}

func newSettingsCmd(a *app) *cobra.Command {
	settings := &cobra.Command{Use: "settings", Short: "Inspect pluginstall's own settings"}

	settings.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to encode settings: %w", err)
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	settings.AddCommand(&cobra.Command{
		Use:   "write <path>",
		Short: "Save the effective settings as a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Write(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	})
	return settings
}
