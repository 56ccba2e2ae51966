package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ads/ads-cli/internal/api"
	"github.com/ads/ads-cli/internal/config"
	"github.com/ads/ads-cli/internal/logger"
	"github.com/ads/ads-cli/internal/ui"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	streamMode bool
	countToken bool
	echoInput  bool
	justJSON   bool
	printEnv   bool
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "ads \"<question>\"",
	Short: "A command-line client for chat-completion APIs",
	Long: `ads sends a question to an OpenAI-compatible chat-completion API
and prints the answer, optionally streaming it as it is generated.

Configuration is read from the first .adsenv file found in the current
directory, your home directory, ~/.config, or /etc/ads. Recognized keys:
API_KEY, BASE_URL, MODEL, SYSTEM_PROMPT. ADS_-prefixed environment
variables override the file.

Examples:
  ads "What is a goroutine?"
  ads --stream "Write a haiku about the sea"
  ads -c "Summarize the TCP handshake"    # show token usage
  ads -j "hello"                          # print the request JSON only
  ads -p                                  # print current configuration`,
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().BoolVarP(&streamMode, "stream", "s", false, "Print the answer incrementally as it arrives")
	rootCmd.Flags().BoolVarP(&countToken, "count-token", "c", false, "Show token usage statistics")
	rootCmd.Flags().BoolVarP(&echoInput, "echo", "e", false, "Echo the question before the answer")
	rootCmd.Flags().BoolVarP(&justJSON, "just-json", "j", false, "Print the request JSON without sending it")
	rootCmd.Flags().BoolVarP(&printEnv, "print-env", "p", false, "Print the current configuration as JSON and exit")
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration file (overrides discovery)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute is the entry point called from main.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion wires the build-time version into cobra's --version flag.
func SetVersion(v string) {
	rootCmd.Version = v
}

func run(cmd *cobra.Command, args []string) error {
	logger.SetVerbose(verbose)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if cfg.Source != "" {
		logger.Get().Debugf("using configuration from %s", cfg.Source)
	}

	if printEnv {
		out, err := cfg.DumpJSON()
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("missing required QUESTION argument\n\nUsage: ads \"<question>\"\nExample: ads \"What is a goroutine?\"")
	}
	question := strings.Join(args, " ")

	if err := cfg.Validate(); err != nil {
		return err
	}

	if echoInput {
		fmt.Printf("\nInput: %s\n", question)
	}

	client := api.NewClient(cfg)

	if justJSON {
		payload, err := client.RequestJSON(question, streamMode)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		fmt.Println(string(payload))
		return nil
	}

	if streamMode {
		return runStream(cmd, client, question)
	}
	return runOnce(cmd, client, question)
}

// runOnce drives the request/full-response path.
func runOnce(cmd *cobra.Command, client *api.Client, question string) error {
	sp := ui.NewSpinner("Thinking...")
	sp.Start()
	resp, err := client.Chat(cmd.Context(), question)
	sp.Stop()
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprint(os.Stderr, "\nAnswer:\n")
	fmt.Println(resp.Content)

	if countToken {
		ui.PrintUsage(os.Stderr, resp.Usage)
	}
	return nil
}

// runStream drives the incremental path; fragments go straight to stdout.
func runStream(cmd *cobra.Command, client *api.Client, question string) error {
	if err := client.ChatStream(cmd.Context(), question, countToken, os.Stdout); err != nil {
		return err
	}
	fmt.Println()
	return nil
}
