/*
Command rsscope drives a Rohde & Schwarz oscilloscope from the command line,
or serves it over HTTP with the run command.

Settings come from defaults, then rsscope.yml, then RSSCOPE_* environment
variables, then flags.  mkconf writes the defaults to a file to edit.
*/
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qmlab/rsscope/generichttp/tmc"
	"github.com/qmlab/rsscope/rohde"
	"github.com/qmlab/rsscope/server"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "rsscope.yml"

	addrFlag, modeFlag, pathFlag string

	acqMode   string
	acqN      int
	acqLength float64
	acqSave   bool
	avgN      int

	rootCmd = &cobra.Command{
		Use:   "rsscope",
		Short: "Rohde & Schwarz oscilloscope control",
		Long: `rsscope acquires traces, averages, screenshots and self-alignments on
Rohde & Schwarz RTO/RTE oscilloscopes over LAN (raw socket), hiLAN (HiSLIP),
USB (USBTMC) or ASRL (serial), and saves traces as CSV or FITS.`,
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Serve the scope over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config(cmd)
			if err != nil {
				return err
			}
			scope, err := rohde.NewScope(c.Scope)
			if err != nil {
				// the server still starts so /raw and /errors can be used to diagnose
				log.Println(err)
			}
			defer scope.Close()
			watchConfig(ConfigFileName, c)
			mux := server.BuildMux(c.Stem, tmc.NewHTTPScope(scope))
			log.Printf("now listening for requests at %s%s\n", c.Addr, server.Stem(c.Stem))
			return http.ListenAndServe(c.Addr, mux)
		},
	}

	acquireCmd = &cobra.Command{
		Use:   "acquire",
		Short: "Acquire in SINGle, NSINGle or AVERage mode",
		Args:  cobra.NoArgs,
		RunE: withScope("acquire", func(s *rohde.Scope) error {
			s.Save = s.Save || acqSave
			return s.Acquire(rohde.Mode(acqMode), acqN, acqLength <= 0, acqLength)
		}),
	}

	averageCmd = &cobra.Command{
		Use:   "average",
		Short: "Average n traces on the instrument",
		Args:  cobra.NoArgs,
		RunE: withScope("average", func(s *rohde.Scope) error {
			return s.Average(avgN)
		}),
	}

	calibrateCmd = &cobra.Command{
		Use:   "calibrate",
		Short: "Run the self-alignment, which takes several minutes",
		Args:  cobra.NoArgs,
		RunE: withScope("calibrate", func(s *rohde.Scope) error {
			return s.Calibrate()
		}),
	}

	saveCmd = &cobra.Command{
		Use:   "save",
		Short: "Save the traces on screen",
		Args:  cobra.NoArgs,
		RunE: withScope("save", func(s *rohde.Scope) error {
			return s.SaveChannels()
		}),
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Save every segment in acquisition memory",
		Args:  cobra.NoArgs,
		RunE: withScope("history", func(s *rohde.Scope) error {
			return s.SaveHistory()
		}),
	}

	screenshotCmd = &cobra.Command{
		Use:   "screenshot",
		Short: "Save an image of the display",
		Args:  cobra.NoArgs,
		RunE: withScope("screenshot", func(s *rohde.Scope) error {
			return s.Screenshot()
		}),
	}

	rawCmd = &cobra.Command{
		Use:   "raw <command>",
		Short: "Send a SCPI command and print any response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config(cmd)
			if err != nil {
				return err
			}
			s, err := rohde.NewScope(c.Scope)
			defer s.Close()
			if err != nil {
				return err
			}
			resp, err := s.Raw(strings.Join(args, " "))
			if resp != "" {
				fmt.Println(resp)
			}
			return err
		},
	}

	mkconfCmd = &cobra.Command{
		Use:   "mkconf",
		Short: "Write the default configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mkconf(ConfigFileName)
		},
	}

	confCmd = &cobra.Command{
		Use:   "conf",
		Short: "Print the configuration in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config(cmd)
			if err != nil {
				return err
			}
			return printconf(c)
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rsscope version %v\n", Version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&ConfigFileName, "config", "c", ConfigFileName, "configuration file")
	rootCmd.PersistentFlags().StringVarP(&addrFlag, "addr", "a", "", "instrument address, overrides scope.addr")
	rootCmd.PersistentFlags().StringVarP(&modeFlag, "mode", "m", "", "LAN, hiLAN, USB or ASRL, overrides scope.mode")
	rootCmd.PersistentFlags().StringVarP(&pathFlag, "path", "p", "", "directory files are saved in, overrides scope.path")

	acquireCmd.Flags().StringVar(&acqMode, "acq-mode", string(rohde.Single), "SINGle, NSINGle or AVERage")
	acquireCmd.Flags().IntVarP(&acqN, "count", "n", 1, "number of traces or averages")
	acquireCmd.Flags().Float64VarP(&acqLength, "length", "l", 0, "record length in samples, 0 lets the instrument choose")
	acquireCmd.Flags().BoolVarP(&acqSave, "save", "s", false, "save what was acquired")
	averageCmd.Flags().IntVarP(&avgN, "count", "n", 10, "number of averages")

	rootCmd.AddCommand(runCmd, acquireCmd, averageCmd, calibrateCmd, saveCmd,
		historyCmd, screenshotCmd, rawCmd, mkconfCmd, confCmd, versionCmd)
}

// config loads the configuration and applies the flags that were set
func config(cmd *cobra.Command) (Config, error) {
	c, err := loadConfig(ConfigFileName)
	if err != nil {
		return c, fmt.Errorf("error loading config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		c.Scope.Addr = addrFlag
	}
	if flags.Changed("mode") {
		c.Scope.Mode = modeFlag
	}
	if flags.Changed("path") {
		c.Scope.Path = pathFlag
	}
	return c, nil
}

// withScope connects to the scope and runs fcn on it behind a spinner
func withScope(name string, fcn func(*rohde.Scope) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := config(cmd)
		if err != nil {
			return err
		}
		return task(name, func() error {
			s, err := rohde.NewScope(c.Scope)
			defer s.Close()
			if err != nil {
				return err
			}
			return fcn(s)
		})
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
