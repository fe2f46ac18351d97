package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	imap "github.com/dbeurive/dbeurive-imap"
	"github.com/dbeurive/dbeurive-imap/config"
)

var (
	cfgFile   string
	encrypted bool
	logLevel  string
	verbose   bool
	cfg       config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commands that work on files given as arguments rather than the configuration
var noConfig = map[string]bool{
	"help":       true,
	"completion": true,
	"explore":    true,
	"encrypt":    true,
	"decrypt":    true,
}

var rootCmd = &cobra.Command{
	Use:           "imaplist",
	Short:         "List IMAP mailboxes and message IDs of the configured accounts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(cmd.ErrOrStderr()); err != nil {
			return err
		}
		if noConfig[cmd.Name()] {
			return nil
		}

		var err error
		cfg, err = loadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func setupLogging(w io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	if verbose {
		level = slog.LevelDebug
		imap.Verbose = true
	}
	imap.SetSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if !encrypted {
		return config.Load(path)
	}
	c, err := config.CipherFromEnv()
	if err != nil {
		return nil, err
	}
	return config.LoadEncrypted(path, c)
}

// ispNames returns args, or every configured ISP when args is empty
func ispNames(args []string) []string {
	if len(args) == 0 {
		return cfg.ISPNames()
	}
	return args
}

func connect(name string) (*imap.Client, error) {
	isp, err := cfg.ISP(name)
	if err != nil {
		return nil, err
	}
	host, port, err := isp.Address()
	if err != nil {
		return nil, err
	}
	c, err := imap.New(isp.User.Login, isp.User.Password, host, port)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	c.Delimiter = isp.IMAP.PathSep
	return c, nil
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, name := range cfg.ISPNames() {
			isp, _ := cfg.ISP(name)
			fmt.Fprintf(out, "%-20s %s:%d (separator %q, login %s)\n", name, isp.Net.Hostname, isp.Net.Port, isp.IMAP.PathSep, isp.User.Login)
		}
		fmt.Fprintf(out, "Configuration OK: %s ISP(s)\n", humanize.Comma(int64(len(cfg))))
		return nil
	},
}

var mailboxesCmd = &cobra.Command{
	Use:   "mailboxes [isp...]",
	Short: "List the mailboxes of the given ISPs (all when none given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		var errs []error
		for _, name := range ispNames(args) {
			mailboxes, err := listMailboxes(name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Fprintf(out, "%s (%s mailboxes)\n", name, humanize.Comma(int64(len(mailboxes))))
			for _, m := range mailboxes {
				fmt.Fprintf(out, "  %-40s %s\n", m.Name, strings.Join(m.Attributes, " "))
			}
		}
		return errors.Join(errs...)
	},
}

func listMailboxes(name string) ([]imap.Mailbox, error) {
	c, err := connect(name)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	mailboxes, err := c.ListMailboxes("", "*")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return mailboxes, nil
}

var rawCmd = &cobra.Command{
	Use:   "raw [isp...]",
	Short: "Print the LIST response lines of the given ISPs, unparsed",
	Long: `Print the LIST response lines of the given ISPs, unparsed.

The output can be saved and fed to "imaplist explore".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		var errs []error
		for _, name := range ispNames(args) {
			lines, err := rawMailboxes(name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Fprintf(out, "# %s\n", name)
			for _, l := range lines {
				fmt.Fprintln(out, l)
			}
		}
		return errors.Join(errs...)
	},
}

func rawMailboxes(name string) ([]string, error) {
	c, err := connect(name)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	lines, err := c.RawMailboxes("", "*")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return lines, nil
}

var idsCmd = &cobra.Command{
	Use:   "ids <isp> [mailbox] [criteria...]",
	Short: "Print the IDs of the messages of a mailbox (INBOX by default)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mailbox := "INBOX"
		if len(args) > 1 {
			mailbox = args[1]
		}
		var criteria []string
		if len(args) > 2 {
			criteria = args[2:]
		}

		c, err := connect(args[0])
		if err != nil {
			return err
		}
		defer c.Close()

		if _, err := c.Select(mailbox, true); err != nil {
			return err
		}
		ids, err := c.SearchIDs(criteria...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s: %s message(s)\n", args[0], mailbox, humanize.Comma(int64(len(ids))))
		if len(ids) > 0 {
			fmt.Fprintln(out, strings.Join(ids, " "))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <isp> [excluded mailbox...]",
	Short: "Print message counts and highest UIDs per mailbox",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(args[0])
		if err != nil {
			return err
		}
		defer c.Close()

		stats, err := c.GetFolderStats(args[1:]...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		total := 0
		for _, s := range stats {
			fmt.Fprintln(out, s)
			total += s.Count
		}
		fmt.Fprintf(out, "Total: %s messages in %s mailboxes\n", humanize.Comma(int64(total)), humanize.Comma(int64(len(stats))))
		return nil
	},
}

var exploreCmd = &cobra.Command{
	Use:   "explore <file>",
	Short: "Tokenize each LIST line of a file and dump the tokens",
	Long: `Tokenize each LIST line of a file and dump the tokens.

Lines are LIST response bodies as printed by "imaplist raw"; blank lines and
lines starting with # are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		return explore(f, cmd.OutOrStdout())
	},
}

var dumper = spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true, SortKeys: true}

func explore(r io.Reader, out io.Writer) error {
	var (
		all    [][]string
		failed int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fmt.Fprintln(out, "================================================")
		fmt.Fprintf(out, "%s\n\n", line)
		tokens, err := imap.ParseMailboxList(line)
		if err != nil {
			fmt.Fprintf(out, "Invalid text: %v\n", err)
			failed++
			continue
		}
		for _, t := range tokens {
			fmt.Fprintln(out, t)
		}
		fmt.Fprintln(out)
		dumper.Fdump(out, tokens.Values())
		all = append(all, tokens.Values())
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n=== END ===")
	dumper.Fdump(out, all)
	if failed > 0 {
		return fmt.Errorf("%d line(s) could not be tokenized", failed)
	}
	return nil
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt <clear config> <output>",
	Short: "Cipher a clear configuration with CYPHER_KEY and CYPHER_IV",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.CipherFromEnv()
		if err != nil {
			return err
		}
		clearCfg, err := config.Load(args[0])
		if err != nil {
			return err
		}
		dump, err := clearCfg.Dump()
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[1], c.Encrypt(dump), 0o600); err != nil {
			return err
		}

		check, err := config.LoadEncrypted(args[1], c)
		if err != nil {
			return fmt.Errorf("cannot read back %s: %w", args[1], err)
		}
		if !clearCfg.Equal(check) {
			return fmt.Errorf("%s does not decrypt to %s", args[1], args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", args[1], humanize.Bytes(uint64(len(dump))))
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt <ciphered config> <output>",
	Short: "Decrypt a configuration, backing up an existing output file first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.CipherFromEnv()
		if err != nil {
			return err
		}
		decrypted, err := config.LoadEncrypted(args[0], c)
		if err != nil {
			return err
		}
		dump, err := decrypted.Dump()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if previous, err := os.ReadFile(args[1]); err == nil {
			backup, err := config.BackupPath(args[1])
			if err != nil {
				return err
			}
			if err := os.WriteFile(backup, previous, 0o600); err != nil {
				return fmt.Errorf("cannot back up %s: %w", args[1], err)
			}
			fmt.Fprintf(out, "Backed up %s to %s\n", args[1], backup)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}

		if err := os.WriteFile(args[1], dump, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s\n", args[1])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "isp.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&encrypted, "encrypted", false, "the config file is ciphered (needs CYPHER_KEY and CYPHER_IV)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every IMAP command and response")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(mailboxesCmd)
	rootCmd.AddCommand(rawCmd)
	rootCmd.AddCommand(idsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(decryptCmd)
}
