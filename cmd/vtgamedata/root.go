package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"vtgamedata/internal/gamedata"
)

// options is the resolved command configuration.
type options struct {
	Binary      string
	Inputs      []string
	Outputs     []string
	Classes     []string
	DumpSlots   bool
	DumpSymbols bool
	Export      string
	Graph       string
	PlainGraph  bool
	MaxLabel    int
}

// newRootCmd builds the command. ran is set once flag validation has passed
// and the command body starts.
func newRootCmd(stdout io.Writer) (*cobra.Command, *bool) {
	var (
		cfgFile string
		ran     bool
	)
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "vtgamedata <binary>",
		Short: "Recover vtable slot indices from an x86 ELF and render gamedata",
		Long: `vtgamedata reads the vtables of a C++ shared object built with the Itanium ABI,
computes each virtual function's native slot index and the index it is
expected to have in an MSVC build, and substitutes #Class::Scope::Function.platform#
keys in template files with those indices.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ran = true

			if v.GetBool("verbose") {
				log.SetLevel(log.DebugLevel)
			}
			color.NoColor = !v.GetBool("color")

			opts := options{
				Binary:      filepath.Clean(args[0]),
				Inputs:      v.GetStringSlice("input"),
				Outputs:     v.GetStringSlice("output"),
				Classes:     v.GetStringSlice("class"),
				DumpSlots:   v.GetBool("dump-slots"),
				DumpSymbols: v.GetBool("dump-symbols"),
				Export:      v.GetString("export"),
				Graph:       v.GetString("graph"),
				PlainGraph:  v.GetBool("plain-graph"),
				MaxLabel:    v.GetInt("max-label"),
			}
			if err := opts.validate(); err != nil {
				return badInput(err)
			}
			return run(opts, stdout)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/vtgamedata/config.yaml)")
	flags.BoolP("verbose", "V", false, "verbose output")
	flags.Bool("color", false, "colorize output")
	flags.StringArrayP("input", "i", nil, "template file ending in "+gamedata.TemplateExt+" (repeatable)")
	flags.StringArrayP("output", "o", nil, "output directory paired with each --input; the last is reused (repeatable)")
	flags.Bool("dump-slots", false, "print native and inferred slot indices of every class")
	flags.StringArrayP("class", "c", nil, "limit the slot dump to these classes (repeatable)")
	flags.Bool("dump-symbols", false, "print every named symbol with its demangled name")
	flags.String("export", "", "write the indexed graph as JSON or YAML")
	flags.String("graph", "", "write the class graph as DOT")
	flags.Bool("plain-graph", false, "use the default lattice layout for --graph")
	flags.Int("max-label", 60, "truncate function labels in --graph (0 = no limit)")

	cmd.MarkFlagsMutuallyExclusive("dump-slots", "dump-symbols")
	cmd.MarkFlagsMutuallyExclusive("dump-slots", "input")
	cmd.MarkFlagsMutuallyExclusive("dump-symbols", "input")

	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name != "config" {
			v.BindPFlag(f.Name, f)
		}
	})
	v.BindEnv("color", "CLICOLOR")

	cmd.SetOut(stdout)
	cmd.CompletionOptions.DisableDefaultCmd = true
	return cmd, &ran
}

// initConfig reads in config file and ENV variables if set.
func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "vtgamedata"))
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("vtgamedata")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return badInput(fmt.Errorf("config: %w", err))
	}
	log.Debugf("Using config file: %s", v.ConfigFileUsed())
	return nil
}

// validate re-checks flag combinations that may also arrive from the
// environment or a config file.
func (o *options) validate() error {
	switch {
	case o.DumpSlots && o.DumpSymbols:
		return fmt.Errorf("cannot use both --dump-slots and --dump-symbols")
	case (o.DumpSlots || o.DumpSymbols) && len(o.Inputs) > 0:
		return fmt.Errorf("--input cannot be combined with dump modes")
	case len(o.Inputs) > 0 && len(o.Outputs) == 0:
		return fmt.Errorf("--input requires at least one --output directory")
	}
	for _, in := range o.Inputs {
		if filepath.Ext(in) != gamedata.TemplateExt {
			return fmt.Errorf("input file %s doesn't have the %s extension", in, gamedata.TemplateExt)
		}
	}
	return nil
}

// wantsDefaultDump reports whether no output was requested, in which case
// the slot table is printed.
func (o *options) wantsDefaultDump() bool {
	return !o.DumpSymbols && len(o.Inputs) == 0 && o.Export == "" && o.Graph == ""
}
